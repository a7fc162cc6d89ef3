// Package cashback projects a client's sale history into available
// cashback balances.
package cashback

import (
	"sort"
	"time"

	"github.com/kodix/kodix/internal/model"
)

// Display is how a sale's available amount is rendered.
type Display string

const (
	DisplayActive  Display = "active"  // highlighted
	DisplayExpired Display = "expired" // struck through
	DisplayUsed    Display = "used"
	DisplayNone    Display = "none"
)

// SaleCashback is the per-sale breakdown.
type SaleCashback struct {
	Sale      model.Sale `json:"sale"`
	Original  float64    `json:"cashback_original"`
	Used      float64    `json:"cashback_used"`
	Available float64    `json:"available"`
	ExpiresAt *time.Time `json:"expires_at"`
	Expired   bool       `json:"expired"`
	Display   Display    `json:"display"`
}

// Summary is a client's cashback position at a point in time.
type Summary struct {
	TotalAvailable float64        `json:"total_available"`
	Sales          []SaleCashback `json:"sales"`
}

// Compute reduces sales into per-sale breakdowns and the client total. Only
// fragments with expiresAt after now count toward TotalAvailable.
func Compute(sales []model.SaleWithCashbacks, now time.Time) Summary {
	sum := Summary{Sales: make([]SaleCashback, 0, len(sales))}
	for _, s := range sales {
		sc := Breakdown(s, now)
		sum.Sales = append(sum.Sales, sc)

		for _, c := range s.Cashbacks {
			if c.ExpiresAt.After(now) {
				sum.TotalAvailable += c.Remaining()
			}
		}
	}
	sum.TotalAvailable = model.Cents(sum.TotalAvailable)
	return sum
}

// Breakdown computes a single sale's figures. The display expiry is the
// first fragment's, even when later fragments expire at other times.
func Breakdown(s model.SaleWithCashbacks, now time.Time) SaleCashback {
	sc := SaleCashback{Sale: s.Sale, Display: DisplayNone}
	if len(s.Cashbacks) == 0 {
		return sc
	}

	for _, c := range s.Cashbacks {
		sc.Original += c.Amount
		sc.Used += c.UsedAmount
	}
	sc.Original = model.Cents(sc.Original)
	sc.Used = model.Cents(sc.Used)
	sc.Available = model.Cents(sc.Original - sc.Used)

	exp := s.Cashbacks[0].ExpiresAt
	sc.ExpiresAt = &exp
	sc.Expired = !exp.After(now)

	switch {
	case sc.Available <= 0:
		sc.Display = DisplayUsed
	case sc.Expired:
		sc.Display = DisplayExpired
	default:
		sc.Display = DisplayActive
	}
	return sc
}

// AvailableFragments returns fragments that are unexpired at now and have
// a remaining balance, soonest expiry first.
func AvailableFragments(cashbacks []model.Cashback, now time.Time) []model.Cashback {
	var out []model.Cashback
	for _, c := range cashbacks {
		if c.ExpiresAt.After(now) && c.Remaining() > 0 {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ExpiresAt.Before(out[j].ExpiresAt)
	})
	return out
}

// TotalRemaining sums the remaining balance of fragments.
func TotalRemaining(cashbacks []model.Cashback) float64 {
	var total float64
	for _, c := range cashbacks {
		total += c.Remaining()
	}
	return model.Cents(total)
}
