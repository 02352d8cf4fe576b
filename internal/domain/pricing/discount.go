package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/till/internal/domain/cart"
)

// DiscountType enumerates direct discount kinds.
type DiscountType string

const (
	// DiscountAmount subtracts a fixed monetary amount.
	DiscountAmount DiscountType = "amount"
	// DiscountPercentage subtracts a percentage of the pre-discount subtotal.
	DiscountPercentage DiscountType = "percentage"
)

// DiscountSpec is a direct discount entered on the current transaction.
// The zero value is no discount.
type DiscountSpec struct {
	Type  DiscountType
	Value decimal.Decimal
}

// NoDiscount returns a zero amount discount.
func NoDiscount() DiscountSpec {
	return DiscountSpec{Type: DiscountAmount}
}

// Validate checks the discount type and that the value is non-negative.
func (s DiscountSpec) Validate() error {
	switch s.Type {
	case DiscountAmount, DiscountPercentage, "":
	default:
		return errors.Errorf("unsupported discount type: %q", s.Type)
	}
	if s.Value.IsNegative() {
		return &cart.InvalidAmountError{Field: "discount", Value: s.Value.String()}
	}
	return nil
}

// ComputeDiscountAmount returns the direct discount for a subtotal.
//
// An amount discount is clamped to the subtotal on the sales flow only. The
// purchase flow applies the raw value, which can drive the discounted
// subtotal negative.
func ComputeDiscountAmount(flow Flow, subtotal decimal.Decimal, spec DiscountSpec) (decimal.Decimal, error) {
	if err := spec.Validate(); err != nil {
		return zero, err
	}

	switch spec.Type {
	case DiscountPercentage:
		return subtotal.Mul(spec.Value).Div(hundred), nil
	default:
		if flow == FlowSales {
			return decimal.Min(spec.Value, subtotal), nil
		}
		return spec.Value, nil
	}
}
