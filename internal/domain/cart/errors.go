package cart

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// InsufficientStockError indicates a requested quantity exceeds the stock
// known for the item.
type InsufficientStockError struct {
	ItemRef   string
	Requested int
	Available int
	// InCart is the quantity already held by the cart when the request was
	// an add to an existing line.
	InCart int
}

func (e *InsufficientStockError) Error() string {
	if e.InCart > 0 {
		return fmt.Sprintf("insufficient stock for %s: only %d additional unit(s) available", e.ItemRef, e.Remaining())
	}
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ItemRef, e.Requested, e.Available)
}

// Remaining returns how many more units may still be added.
func (e *InsufficientStockError) Remaining() int {
	if r := e.Available - e.InCart; r > 0 {
		return r
	}
	return 0
}

// InvalidAmountError indicates a non-positive quantity or a negative price or
// discount value.
type InvalidAmountError struct {
	Field string
	Value string
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Value)
}

// LineNotFoundError indicates the cart holds no line for the item.
type LineNotFoundError struct {
	ItemRef string
}

func (e *LineNotFoundError) Error() string {
	return fmt.Sprintf("item %s is not in the cart", e.ItemRef)
}

// BelowCostPriceWarning is an advisory raised when a line's unit price is
// below its last known purchase cost. It never blocks an edit.
type BelowCostPriceWarning struct {
	ItemRef   string
	UnitPrice decimal.Decimal
	CostPrice decimal.Decimal
}

func (w *BelowCostPriceWarning) Error() string {
	return fmt.Sprintf("unit price %s for %s is below cost %s", w.UnitPrice, w.ItemRef, w.CostPrice)
}
