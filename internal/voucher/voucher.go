// Package voucher computes how much cashback a purchase can redeem and how
// the redeemed amount is split over cashback fragments.
package voucher

import (
	"errors"
	"fmt"
	"math"

	"github.com/kodix/kodix/internal/model"
)

// DefaultCap is the fraction of a purchase that cashback may cover.
const DefaultCap = 0.5

var (
	ErrInvalidCap           = errors.New("redemption cap must be in (0, 1]")
	ErrNothingToRedeem      = errors.New("nothing to redeem")
	ErrInsufficientCashback = errors.New("insufficient cashback")
)

// epsilon absorbs float drift when comparing currency amounts.
const epsilon = 1e-9

type Redemption struct {
	PurchaseTotal   float64 `json:"purchase_total"`
	Available       float64 `json:"available"`
	MaxFromPurchase float64 `json:"max_from_purchase"`
	Amount          float64 `json:"amount"`
	CanRedeem       bool    `json:"can_redeem"`
}

// ComputeRedemption returns min(purchaseTotal*cap, available), truncated
// to whole cents. Negative inputs count as zero.
func ComputeRedemption(purchaseTotal, available, percentageCap float64) Redemption {
	purchaseTotal = math.Max(purchaseTotal, 0)
	available = model.CentsDown(math.Max(available, 0))

	r := Redemption{
		PurchaseTotal:   purchaseTotal,
		Available:       available,
		MaxFromPurchase: model.CentsDown(purchaseTotal * percentageCap),
	}
	r.Amount = math.Min(r.MaxFromPurchase, available)
	r.CanRedeem = purchaseTotal > 0 && r.Amount > 0
	return r
}

// ValidateCap checks a configured cap.
func ValidateCap(percentageCap float64) error {
	if math.IsNaN(percentageCap) || percentageCap <= 0 || percentageCap > 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidCap, percentageCap)
	}
	return nil
}

// Allocate spreads amount over fragments in the order given. Callers pass
// unexpired fragments sorted by expiry so the oldest credit is used first.
func Allocate(fragments []model.Cashback, amount float64) ([]model.VoucherCashback, error) {
	if amount <= 0 {
		return nil, ErrNothingToRedeem
	}

	var out []model.VoucherCashback
	left := model.Cents(amount)
	for _, f := range fragments {
		if left <= epsilon {
			break
		}
		rem := f.Remaining()
		if rem <= 0 {
			continue
		}
		take := math.Min(rem, left)
		out = append(out, model.VoucherCashback{CashbackID: f.ID, Amount: take})
		left = model.Cents(left - take)
	}
	if left > epsilon {
		return nil, fmt.Errorf("%w: short by %.2f", ErrInsufficientCashback, left)
	}
	return out, nil
}
