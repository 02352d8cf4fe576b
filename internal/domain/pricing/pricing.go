// Package pricing computes cart totals for the sales and purchase flows.
//
// Every function here is pure: inputs are passed explicitly and results are
// returned at full decimal precision. Rounding to display precision happens
// only through Result.Rounded at the presentation boundary.
//
// The two flows differ. Sales tax is a flat rate while purchase tax follows
// the supplier classification schedule. A fixed-amount discount is clamped to
// the subtotal on sales but not on purchases.
package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/till/internal/domain/cart"
	"github.com/xenking/till/internal/domain/counterparty"
)

// Flow identifies the entry screen a cart is priced for.
type Flow string

const (
	FlowSales    Flow = "sales"
	FlowPurchase Flow = "purchase"
)

// ParseFlow validates a flow name.
func ParseFlow(s string) (Flow, error) {
	switch f := Flow(s); f {
	case FlowSales, FlowPurchase:
		return f, nil
	default:
		return "", errors.Errorf("unknown flow %q", s)
	}
}

// CounterpartyKind returns the counterparty kind a flow trades with.
func (f Flow) CounterpartyKind() counterparty.Kind {
	if f == FlowPurchase {
		return counterparty.KindSupplier
	}
	return counterparty.KindCustomer
}

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// ComputeSubtotal returns the sum of quantity * unit price over all lines.
// No rounding is applied.
func ComputeSubtotal(lines []cart.LineItem) decimal.Decimal {
	sum := zero
	for _, l := range lines {
		sum = sum.Add(l.LineTotal())
	}
	return sum
}

// Input holds everything needed to price a cart.
type Input struct {
	Flow     Flow
	Lines    []cart.LineItem
	Discount DiscountSpec
	// CouponDiscount is an already computed coupon amount (sales only). It
	// reduces the same subtotal as the direct discount.
	CouponDiscount decimal.Decimal
	TaxExempt      bool
	// Counterparty may be nil when quoting before one is selected.
	Counterparty *counterparty.Counterparty
}

// Result is the fully derived pricing of a cart. It is never stored.
type Result struct {
	Flow           Flow
	Subtotal       decimal.Decimal
	DirectDiscount decimal.Decimal
	CouponDiscount decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxRate        decimal.Decimal
	TaxAmount      decimal.Decimal
	Total          decimal.Decimal
	// TotalPayables is Total plus the customer's outstanding balance. It is
	// only set on the sales flow with a counterparty.
	TotalPayables *decimal.Decimal
}

// Rounded returns a copy with every amount rounded to two decimal places.
func (r Result) Rounded() Result {
	out := r
	out.Subtotal = r.Subtotal.Round(2)
	out.DirectDiscount = r.DirectDiscount.Round(2)
	out.CouponDiscount = r.CouponDiscount.Round(2)
	out.DiscountAmount = r.DiscountAmount.Round(2)
	out.TaxAmount = r.TaxAmount.Round(2)
	out.Total = r.Total.Round(2)
	if r.TotalPayables != nil {
		p := r.TotalPayables.Round(2)
		out.TotalPayables = &p
	}
	return out
}

// Compute prices a cart.
func Compute(in Input) (Result, error) {
	if _, err := ParseFlow(string(in.Flow)); err != nil {
		return Result{}, err
	}

	subtotal := ComputeSubtotal(in.Lines)

	direct, err := ComputeDiscountAmount(in.Flow, subtotal, in.Discount)
	if err != nil {
		return Result{}, err
	}

	couponAmount := zero
	if in.Flow == FlowSales {
		if in.CouponDiscount.IsNegative() {
			return Result{}, &cart.InvalidAmountError{Field: "couponDiscount", Value: in.CouponDiscount.String()}
		}
		// The combined sales discount never exceeds the subtotal; the coupon
		// only takes what the direct discount left.
		couponAmount = decimal.Min(in.CouponDiscount, decimal.Max(zero, subtotal.Sub(direct)))
	}
	discount := direct.Add(couponAmount)

	var rate decimal.Decimal
	switch in.Flow {
	case FlowSales:
		rate = SalesTaxRate(in.TaxExempt)
	case FlowPurchase:
		rate = ResolveTaxRate(taxContextFor(in.TaxExempt, in.Counterparty))
	}

	tax, total := ComputeTotal(subtotal, discount, rate)

	res := Result{
		Flow:           in.Flow,
		Subtotal:       subtotal,
		DirectDiscount: direct,
		CouponDiscount: couponAmount,
		DiscountAmount: discount,
		TaxRate:        rate,
		TaxAmount:      tax,
		Total:          total,
	}
	if in.Flow == FlowSales && in.Counterparty != nil {
		payables := total.Add(in.Counterparty.OutstandingBalance())
		res.TotalPayables = &payables
	}
	return res, nil
}

// ComputeTotal applies the discount and the tax rate to a subtotal. Tax is
// charged on the post-discount amount.
func ComputeTotal(subtotal, discount, rate decimal.Decimal) (tax, total decimal.Decimal) {
	net := subtotal.Sub(discount)
	tax = net.Mul(rate)
	return tax, net.Add(tax)
}
