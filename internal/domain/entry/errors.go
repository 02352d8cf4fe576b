package entry

import (
	"github.com/go-faster/errors"

	"github.com/xenking/till/internal/domain/order"
)

var (
	// ErrSessionNotFound is returned for unknown or evicted sessions.
	ErrSessionNotFound = errors.New("entry session not found")
	// ErrSubmissionInFlight is returned when a session is already submitting.
	ErrSubmissionInFlight = errors.New("submission already in progress")
	// ErrTooManySessions is returned by Open when the session cap is reached.
	ErrTooManySessions = errors.New("too many open sessions")
	// ErrNoPendingAdd is returned when there is no add awaiting confirmation.
	ErrNoPendingAdd = errors.New("no pending add to confirm")
	// ErrCouponNotAllowed is returned when a coupon is set on a purchase.
	ErrCouponNotAllowed = order.ErrCouponNotAllowed
)
