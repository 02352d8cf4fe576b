package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/till/internal/domain/counterparty"
)

var (
	salesTaxRate      = decimal.RequireFromString("0.08")
	purchaseTaxRate   = decimal.RequireFromString("0.08")
	loyaltyMultiplier = decimal.RequireFromString("0.5")

	purchaseRates = map[counterparty.BusinessType]decimal.Decimal{
		counterparty.BusinessManufacturer: decimal.RequireFromString("0.06"),
		counterparty.BusinessDistributor:  decimal.RequireFromString("0.07"),
		counterparty.BusinessWholesaler:   decimal.RequireFromString("0.08"),
		counterparty.BusinessDropshipper:  decimal.RequireFromString("0.05"),
	}
)

// loyaltyMinRating is the supplier rating that, with excellent reliability,
// halves the purchase tax rate.
const loyaltyMinRating = 5

// TaxContext is the input to purchase tax rate resolution.
type TaxContext struct {
	IsTaxExempt  bool
	BusinessType counterparty.BusinessType
	Rating       int
	Reliability  string
}

func taxContextFor(exempt bool, cp *counterparty.Counterparty) TaxContext {
	tc := TaxContext{IsTaxExempt: exempt}
	if cp != nil {
		tc.BusinessType = cp.BusinessType
		tc.Rating = cp.Rating
		tc.Reliability = cp.Reliability
	}
	return tc
}

// ResolveTaxRate returns the purchase flow tax rate in [0, 1].
// Exemption short-circuits every other rule.
func ResolveTaxRate(tc TaxContext) decimal.Decimal {
	if tc.IsTaxExempt {
		return zero
	}

	rate, ok := purchaseRates[tc.BusinessType]
	if !ok {
		rate = purchaseTaxRate
	}

	if tc.Rating >= loyaltyMinRating && tc.Reliability == counterparty.ReliabilityExcellent {
		rate = rate.Mul(loyaltyMultiplier)
	}
	return rate
}

// SalesTaxRate returns the sales flow tax rate: zero when exempt, otherwise
// a flat 8% regardless of the customer classification.
func SalesTaxRate(exempt bool) decimal.Decimal {
	if exempt {
		return zero
	}
	return salesTaxRate
}
