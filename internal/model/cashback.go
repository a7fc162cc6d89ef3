package model

import (
	"math"
	"time"
)

type Client struct {
	ID        int64     `json:"id"`
	TeamID    int64     `json:"team_id"`
	Name      string    `json:"name"`
	Document  string    `json:"document"`
	CreatedAt time.Time `json:"created_at"`
}

type Sale struct {
	ID          int64     `json:"id"`
	TeamID      int64     `json:"team_id"`
	ClientID    int64     `json:"client_id"`
	Total       float64   `json:"total"`
	CaNumero    string    `json:"ca_numero"`
	CaCreatedAt time.Time `json:"ca_created_at"`
}

// Cashback is a single credit fragment earned from a sale.
type Cashback struct {
	ID         int64     `json:"id"`
	SaleID     int64     `json:"sale_id"`
	ClientID   int64     `json:"client_id"`
	Amount     float64   `json:"amount"`
	UsedAmount float64   `json:"used_amount"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Remaining is the unused part of the fragment.
func (c Cashback) Remaining() float64 {
	return Cents(c.Amount - c.UsedAmount)
}

// Cents rounds a money amount to two decimal places, halves away from zero.
func Cents(x float64) float64 {
	return math.Round(x*100) / 100
}

// CentsDown truncates a non-negative money amount to whole cents.
func CentsDown(x float64) float64 {
	return math.Floor(x*100+1e-6) / 100
}

type SaleWithCashbacks struct {
	Sale      Sale       `json:"sale"`
	Cashbacks []Cashback `json:"cashbacks"`
}

type Voucher struct {
	ID               int64             `json:"id"`
	TeamID           int64             `json:"team_id"`
	ClientID         int64             `json:"client_id"`
	CodeNumber       int64             `json:"code_number"`
	PurchaseTotal    float64           `json:"purchase_total"`
	Amount           float64           `json:"amount"`
	CreatedByUserID  int64             `json:"created_by_user_id"`
	VoucherCashbacks []VoucherCashback `json:"voucher_cashbacks"`
	CreatedAt        time.Time         `json:"created_at"`
}

type VoucherCashback struct {
	CashbackID int64   `json:"cashback_id"`
	Amount     float64 `json:"amount"`
}
