package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/till/internal/domain/counterparty"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalogue item sold to customers and bought from
// suppliers.
type Product struct {
	ID             string
	SKU            string
	Name           string
	Category       string
	RetailPrice    decimal.Decimal
	WholesalePrice decimal.Decimal
	// CostPrice is the last known purchase cost. Zero means unknown.
	CostPrice decimal.Decimal
	Inventory Inventory
}

// Inventory tracks on-hand stock.
type Inventory struct {
	CurrentStock int
	ReorderPoint int
}

// NeedsReorder reports whether stock has fallen to the reorder point.
func (i Inventory) NeedsReorder() bool {
	return i.CurrentStock <= i.ReorderPoint
}

// UnitPriceFor returns the default unit price for a line traded with a
// counterparty of the given kind and business type. Suppliers are paid the
// cost price; wholesale buyers get the wholesale price when one is set.
func (p Product) UnitPriceFor(kind counterparty.Kind, bt counterparty.BusinessType) decimal.Decimal {
	if kind == counterparty.KindSupplier {
		return p.CostPrice
	}
	if bt.BuysWholesale() && p.WholesalePrice.IsPositive() {
		return p.WholesalePrice
	}
	return p.RetailPrice
}

// Repository defines read operations for the product catalogue.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
