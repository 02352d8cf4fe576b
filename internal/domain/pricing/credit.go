package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xenking/till/internal/domain/counterparty"
)

// creditWarningRatio is the share of the credit limit below which the
// remaining available credit triggers a warning.
var creditWarningRatio = decimal.RequireFromString("0.10")

// CreditLimitExceededError blocks a sales checkout whose projected
// outstanding balance would exceed the customer's credit limit.
type CreditLimitExceededError struct {
	CounterpartyID string
	CreditLimit    decimal.Decimal
	Outstanding    decimal.Decimal
	Projected      decimal.Decimal
}

func (e *CreditLimitExceededError) Error() string {
	return fmt.Sprintf("credit limit %s exceeded for %s: projected balance %s",
		e.CreditLimit.StringFixed(2), e.CounterpartyID, e.Projected.StringFixed(2))
}

// CreditLimitWarning is a non-blocking advisory raised when the credit left
// after an order falls below ten percent of the limit.
type CreditLimitWarning struct {
	CounterpartyID string
	CreditLimit    decimal.Decimal
	Available      decimal.Decimal
}

func (w *CreditLimitWarning) Error() string {
	return fmt.Sprintf("available credit for %s after this order is %s of %s",
		w.CounterpartyID, w.Available.StringFixed(2), w.CreditLimit.StringFixed(2))
}

// CreditCheck is the outcome of CheckCreditLimit.
type CreditCheck struct {
	Checked     bool
	Unpaid      decimal.Decimal
	Outstanding decimal.Decimal
	Projected   decimal.Decimal
	Warning     *CreditLimitWarning
}

// CheckCreditLimit verifies a sales order against the customer's credit
// limit. A zero limit means no limit and skips the check. The returned error
// is *CreditLimitExceededError when the order must be blocked.
func CheckCreditLimit(cp *counterparty.Counterparty, total, amountPaid decimal.Decimal) (CreditCheck, error) {
	if cp == nil || !cp.HasCreditLimit() {
		return CreditCheck{}, nil
	}

	unpaid := total.Sub(amountPaid)
	outstanding := cp.TotalOutstanding()
	projected := outstanding.Add(unpaid)

	check := CreditCheck{
		Checked:     true,
		Unpaid:      unpaid,
		Outstanding: outstanding,
		Projected:   projected,
	}

	if projected.GreaterThan(cp.CreditLimit) {
		return check, &CreditLimitExceededError{
			CounterpartyID: cp.ID,
			CreditLimit:    cp.CreditLimit,
			Outstanding:    outstanding,
			Projected:      projected,
		}
	}

	available := cp.CreditLimit.Sub(projected)
	if available.LessThan(cp.CreditLimit.Mul(creditWarningRatio)) {
		check.Warning = &CreditLimitWarning{
			CounterpartyID: cp.ID,
			CreditLimit:    cp.CreditLimit,
			Available:      available,
		}
	}
	return check, nil
}
