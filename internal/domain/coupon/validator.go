package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// Validator validates a coupon code against a set of cart items and returns
// the computed discount.
type Validator interface {
	// Validate previews the discount without consuming a use.
	Validate(ctx context.Context, code string, items []Item) (*Discount, error)
	// Redeem validates the code and consumes one use.
	Redeem(ctx context.Context, code string, items []Item) (*Discount, error)
}

var _ Validator = (*RepoValidator)(nil)

// RepoValidator implements Validator by looking up coupon rules from a
// Repository and applying them via the Apply function.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// NormalizeCode trims and upper-cases a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate looks up the coupon rule for the given code, checks temporal
// validity and usage limits, and applies it to the cart items.
func (v *RepoValidator) Validate(ctx context.Context, code string, items []Item) (*Discount, error) {
	rule, err := v.lookup(ctx, code)
	if err != nil {
		return nil, err
	}

	d, err := Apply(rule, items)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Redeem is Validate followed by incrementing the usage counter.
func (v *RepoValidator) Redeem(ctx context.Context, code string, items []Item) (*Discount, error) {
	d, err := v.Validate(ctx, code, items)
	if err != nil {
		return nil, err
	}

	if err := v.repo.IncrementUses(ctx, d.Code); err != nil {
		if errors.Is(err, ErrCouponUsageLimitReached) {
			return nil, ErrCouponUsageLimitReached
		}
		return nil, errors.Wrap(err, "increment coupon uses")
	}
	return d, nil
}

func (v *RepoValidator) lookup(ctx context.Context, code string) (*Rule, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrInvalidCoupon
	}

	rule, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	now := v.now()

	if rule.ValidFrom != nil && now.Before(*rule.ValidFrom) {
		return nil, ErrCouponExpired
	}
	if rule.ValidUntil != nil && now.After(*rule.ValidUntil) {
		return nil, ErrCouponExpired
	}

	if rule.MaxUses > 0 && rule.Uses >= rule.MaxUses {
		return nil, ErrCouponUsageLimitReached
	}
	return rule, nil
}
