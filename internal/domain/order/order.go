package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/till/internal/domain/cart"
	"github.com/xenking/till/internal/domain/pricing"
)

// Payment records what was tendered at checkout.
type Payment struct {
	Method string          `json:"method"`
	Amount decimal.Decimal `json:"amount"`
}

// SubmissionItem is a persisted cart line.
type SubmissionItem struct {
	ItemRef   string          `json:"item_ref"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Submission is the payload persisted for a checked-out cart. Every amount is
// rounded to two decimal places.
type Submission struct {
	Items          []SubmissionItem `json:"items"`
	Subtotal       decimal.Decimal  `json:"subtotal"`
	DiscountAmount decimal.Decimal  `json:"discount_amount"`
	TaxAmount      decimal.Decimal  `json:"tax_amount"`
	Total          decimal.Decimal  `json:"total"`
	Payment        Payment          `json:"payment"`
}

// NewSubmission builds the rounded submission payload from cart lines and
// their full-precision pricing.
func NewSubmission(lines []cart.LineItem, res pricing.Result, payment Payment) Submission {
	r := res.Rounded()
	items := make([]SubmissionItem, len(lines))
	for i, l := range lines {
		items[i] = SubmissionItem{
			ItemRef:   l.ItemRef,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.Round(2),
		}
	}
	return Submission{
		Items:          items,
		Subtotal:       r.Subtotal,
		DiscountAmount: r.DiscountAmount,
		TaxAmount:      r.TaxAmount,
		Total:          r.Total,
		Payment: Payment{
			Method: payment.Method,
			Amount: payment.Amount.Round(2),
		},
	}
}

// Order is a submitted sale or purchase.
type Order struct {
	ID             string
	Flow           pricing.Flow
	CounterpartyID string
	Submission     Submission
	CouponCode     string
	CreatedAt      time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, order *Order) error
}
