package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/till/internal/domain/cart"
	"github.com/xenking/till/internal/domain/counterparty"
	"github.com/xenking/till/internal/domain/coupon"
	"github.com/xenking/till/internal/domain/entry"
	"github.com/xenking/till/internal/domain/order"
	"github.com/xenking/till/internal/domain/pricing"
	"github.com/xenking/till/internal/domain/product"
	"github.com/xenking/till/pkg/httpmiddleware"
)

// statusFor maps domain errors to HTTP status codes. Unknown errors are 500.
func statusFor(err error) int {
	var (
		invalidAmount *cart.InvalidAmountError
		stock         *cart.InsufficientStockError
		missingLine   *cart.LineNotFoundError
		kind          *order.CounterpartyKindError
		credit        *pricing.CreditLimitExceededError
		bad           *badRequestError
	)
	switch {
	case errors.Is(err, entry.ErrSessionNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, counterparty.ErrNotFound),
		errors.As(err, &missingLine):
		return http.StatusNotFound
	case errors.Is(err, entry.ErrSubmissionInFlight),
		errors.Is(err, entry.ErrNoPendingAdd):
		return http.StatusConflict
	case errors.As(err, &invalidAmount),
		errors.As(err, &stock),
		errors.As(err, &kind),
		errors.As(err, &credit),
		errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, order.ErrMissingCounterparty),
		errors.Is(err, order.ErrCouponNotAllowed),
		errors.Is(err, coupon.ErrInvalidCoupon),
		errors.Is(err, coupon.ErrCouponExpired),
		errors.Is(err, coupon.ErrCouponUsageLimitReached):
		return http.StatusUnprocessableEntity
	case errors.Is(err, entry.ErrTooManySessions):
		return http.StatusServiceUnavailable
	case errors.As(err, &bad):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. Internal errors are logged and their text hidden.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = "internal server error"
	}
	httpmiddleware.WriteError(w, status, msg)
}
