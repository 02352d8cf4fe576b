// Package counterparty describes the customers and suppliers a cart is
// priced for. Counterparties are read-only inputs: balances are owned by the
// ledger backend and never updated here.
package counterparty

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested counterparty does not exist.
var ErrNotFound = errors.New("counterparty not found")

// Kind distinguishes customers (sales) from suppliers (purchases).
type Kind string

const (
	KindCustomer Kind = "customer"
	KindSupplier Kind = "supplier"
)

// BusinessType classifies a counterparty. Unknown values are preserved as-is
// and treated as "other" by pricing rules.
type BusinessType string

const (
	BusinessRetail       BusinessType = "retail"
	BusinessWholesale    BusinessType = "wholesale"
	BusinessDistributor  BusinessType = "distributor"
	BusinessManufacturer BusinessType = "manufacturer"
	BusinessWholesaler   BusinessType = "wholesaler"
	BusinessDropshipper  BusinessType = "dropshipper"
	BusinessIndividual   BusinessType = "individual"
)

// ParseBusinessType normalises a business type string.
func ParseBusinessType(s string) BusinessType {
	return BusinessType(strings.ToLower(strings.TrimSpace(s)))
}

// BuysWholesale reports whether the business type is priced from the
// wholesale price list on sales.
func (b BusinessType) BuysWholesale() bool {
	switch b {
	case BusinessWholesale, BusinessWholesaler, BusinessDistributor:
		return true
	default:
		return false
	}
}

// ReliabilityExcellent is the reliability grade that qualifies a supplier for
// the loyalty tax reduction.
const ReliabilityExcellent = "excellent"

// Counterparty is a customer or supplier.
type Counterparty struct {
	ID           string
	Kind         Kind
	Name         string
	BusinessType BusinessType
	// CurrentBalance is the net amount owed from prior, settled transactions.
	CurrentBalance decimal.Decimal
	// PendingBalance is the amount owed by orders not yet settled.
	PendingBalance decimal.Decimal
	// CreditLimit caps the outstanding balance of a customer. Zero means no limit.
	CreditLimit decimal.Decimal
	Rating      int
	Reliability string
}

// OutstandingBalance returns the net amount owed by or to the counterparty
// from prior transactions, independent of the current cart.
func (c *Counterparty) OutstandingBalance() decimal.Decimal {
	return c.CurrentBalance
}

// TotalOutstanding returns current plus pending balances.
func (c *Counterparty) TotalOutstanding() decimal.Decimal {
	return c.CurrentBalance.Add(c.PendingBalance)
}

// HasCreditLimit reports whether a positive credit limit is configured.
func (c *Counterparty) HasCreditLimit() bool {
	return c.CreditLimit.IsPositive()
}

// Repository defines read operations for counterparties.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Counterparty, error)
}
