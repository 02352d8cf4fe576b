// Package cart models the in-progress, unsubmitted collection of line items
// owned by a single sale or purchase entry session.
//
// Cart is an immutable value: every mutation returns a new Cart, and a
// rejected mutation returns the receiver unchanged together with an error.
package cart

import (
	"github.com/shopspring/decimal"
)

// State is the observable lifecycle state of a cart.
type State string

const (
	// StateEmpty is a cart with no lines.
	StateEmpty State = "empty"
	// StatePopulated is a cart holding at least one line.
	StatePopulated State = "populated"
)

// LineItem is a single product or variant line in a cart.
type LineItem struct {
	ItemRef   string
	Quantity  int
	UnitPrice decimal.Decimal
	// AvailableStock is the stock known when the item was selected.
	AvailableStock int
	// CostPrice is the last known purchase cost. Zero means unknown.
	CostPrice decimal.Decimal
	// BelowCost is set when a price edit moved the line below CostPrice.
	BelowCost bool
}

// LineTotal returns Quantity * UnitPrice at full precision.
func (l LineItem) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func (l LineItem) belowCost(price decimal.Decimal) bool {
	return l.CostPrice.IsPositive() && price.LessThan(l.CostPrice)
}

// Cart is an ordered sequence of line items keyed by ItemRef.
type Cart struct {
	lines     []LineItem
	unbounded bool
}

// New returns an empty cart that bounds line quantities by available stock.
// Sales entry uses this cart.
func New() Cart {
	return Cart{}
}

// NewUnbounded returns an empty cart that does not bound quantities by
// stock. Purchase entry uses this cart since a purchase adds stock.
func NewUnbounded() Cart {
	return Cart{unbounded: true}
}

// Lines returns a copy of the cart lines in insertion order.
func (c Cart) Lines() []LineItem {
	out := make([]LineItem, len(c.lines))
	copy(out, c.lines)
	return out
}

// Len returns the number of lines.
func (c Cart) Len() int {
	return len(c.lines)
}

// State reports whether the cart is empty or populated.
func (c Cart) State() State {
	if len(c.lines) == 0 {
		return StateEmpty
	}
	return StatePopulated
}

// GuardsStock reports whether quantities are bounded by available stock.
func (c Cart) GuardsStock() bool {
	return !c.unbounded
}

// Line returns the line for ref.
func (c Cart) Line(ref string) (LineItem, bool) {
	if i := c.index(ref); i >= 0 {
		return c.lines[i], true
	}
	return LineItem{}, false
}

// TotalQuantity returns the sum of quantities across all lines.
func (c Cart) TotalQuantity() int {
	total := 0
	for _, l := range c.lines {
		total += l.Quantity
	}
	return total
}

// Clear returns an empty cart with the same stock policy.
func (c Cart) Clear() Cart {
	return Cart{unbounded: c.unbounded}
}

// Remove returns a cart without the line for ref.
func (c Cart) Remove(ref string) (Cart, error) {
	i := c.index(ref)
	if i < 0 {
		return c, &LineNotFoundError{ItemRef: ref}
	}
	next := c.clone()
	next.lines = append(next.lines[:i], next.lines[i+1:]...)
	return next, nil
}

// UpdateQuantity reconciles the cart after a quantity edit. A quantity of
// zero or less removes the line; a quantity above the line's available stock
// is rejected with *InsufficientStockError and the cart is returned unchanged.
func (c Cart) UpdateQuantity(ref string, quantity int) (Cart, error) {
	i := c.index(ref)
	if i < 0 {
		return c, &LineNotFoundError{ItemRef: ref}
	}
	if quantity <= 0 {
		return c.Remove(ref)
	}

	line := c.lines[i]
	if c.exceedsStock(line, quantity) {
		return c, &InsufficientStockError{
			ItemRef:   ref,
			Requested: quantity,
			Available: line.AvailableStock,
		}
	}

	next := c.clone()
	next.lines[i].Quantity = quantity
	return next, nil
}

// UpdateUnitPrice replaces the unit price of a line. Prices below the known
// cost do not block the edit: the line is flagged and a warning is returned.
func (c Cart) UpdateUnitPrice(ref string, price decimal.Decimal) (Cart, *BelowCostPriceWarning, error) {
	i := c.index(ref)
	if i < 0 {
		return c, nil, &LineNotFoundError{ItemRef: ref}
	}
	if price.IsNegative() {
		return c, nil, &InvalidAmountError{Field: "unitPrice", Value: price.String()}
	}

	next := c.clone()
	line := &next.lines[i]
	line.UnitPrice = price
	line.BelowCost = line.belowCost(price)

	var warn *BelowCostPriceWarning
	if line.BelowCost {
		warn = &BelowCostPriceWarning{ItemRef: ref, UnitPrice: price, CostPrice: line.CostPrice}
	}
	return next, warn, nil
}

func (c Cart) exceedsStock(line LineItem, quantity int) bool {
	return !c.unbounded && quantity > line.AvailableStock
}

func (c Cart) index(ref string) int {
	for i, l := range c.lines {
		if l.ItemRef == ref {
			return i
		}
	}
	return -1
}

func (c Cart) clone() Cart {
	next := Cart{unbounded: c.unbounded}
	next.lines = make([]LineItem, len(c.lines), len(c.lines)+1)
	copy(next.lines, c.lines)
	return next
}
