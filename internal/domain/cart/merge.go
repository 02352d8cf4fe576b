package cart

import (
	"strconv"
)

// MergeEffect is the proposed result of adding an item to a cart. It is
// computed without touching the cart and applied with Commit once the caller
// has any confirmation it needs.
type MergeEffect struct {
	// Line is the line as it will look after the commit.
	Line LineItem
	// Existing is true when the item is already in the cart and the add
	// sums quantities into the existing line.
	Existing bool
	// PreviousQuantity is the quantity held before the add (zero for new lines).
	PreviousQuantity int
	// BelowCost is set when the unit price is below the item's known cost.
	BelowCost *BelowCostPriceWarning
}

// RequiresConfirmation reports whether the user must consent before the
// effect is committed: merging into an existing line and pricing below cost
// both need explicit confirmation.
func (e MergeEffect) RequiresConfirmation() bool {
	return e.Existing || e.BelowCost != nil
}

// ComputeMergeEffect validates item against the cart and returns the change
// adding it would make. The cart is never modified.
func (c Cart) ComputeMergeEffect(item LineItem) (MergeEffect, error) {
	if item.Quantity < 1 {
		return MergeEffect{}, &InvalidAmountError{Field: "quantity", Value: strconv.Itoa(item.Quantity)}
	}
	if item.UnitPrice.IsNegative() {
		return MergeEffect{}, &InvalidAmountError{Field: "unitPrice", Value: item.UnitPrice.String()}
	}

	effect := MergeEffect{Line: item}
	if i := c.index(item.ItemRef); i >= 0 {
		existing := c.lines[i]
		combined := existing.Quantity + item.Quantity
		if c.exceedsStock(item, combined) {
			return MergeEffect{}, &InsufficientStockError{
				ItemRef:   item.ItemRef,
				Requested: item.Quantity,
				Available: item.AvailableStock,
				InCart:    existing.Quantity,
			}
		}
		// The existing line keeps its price; stock and cost take the
		// fresher snapshot from the item being added.
		line := existing
		line.Quantity = combined
		line.AvailableStock = item.AvailableStock
		if item.CostPrice.IsPositive() {
			line.CostPrice = item.CostPrice
		}
		effect.Line = line
		effect.Existing = true
		effect.PreviousQuantity = existing.Quantity
	} else if c.exceedsStock(item, item.Quantity) {
		return MergeEffect{}, &InsufficientStockError{
			ItemRef:   item.ItemRef,
			Requested: item.Quantity,
			Available: item.AvailableStock,
		}
	}

	line := &effect.Line
	if !line.BelowCost && line.belowCost(line.UnitPrice) {
		effect.BelowCost = &BelowCostPriceWarning{
			ItemRef:   line.ItemRef,
			UnitPrice: line.UnitPrice,
			CostPrice: line.CostPrice,
		}
		line.BelowCost = true
	}
	return effect, nil
}

// Commit applies a merge effect. An effect for an existing line replaces that
// line in place; otherwise the line is appended. Commit never produces two
// lines with the same ItemRef.
func (c Cart) Commit(effect MergeEffect) Cart {
	next := c.clone()
	if i := next.index(effect.Line.ItemRef); i >= 0 {
		next.lines[i] = effect.Line
		return next
	}
	next.lines = append(next.lines, effect.Line)
	return next
}
