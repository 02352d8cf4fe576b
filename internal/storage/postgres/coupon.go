package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/till/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT code, discount_type, value, min_items, description,
		valid_from, valid_until, max_uses, uses, max_discount
		FROM coupons WHERE UPPER(code) = UPPER($1) AND active = TRUE`

	incrementCouponUsesSQL = `UPDATE coupons SET uses = uses + 1
		WHERE code = $1 AND active = TRUE AND (max_uses = 0 OR uses < max_uses)`

	upsertCouponSQL = `INSERT INTO coupons (code, discount_type, value, min_items, description,
			valid_from, valid_until, max_uses, max_discount, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE)
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type,
			value = EXCLUDED.value,
			min_items = EXCLUDED.min_items,
			description = EXCLUDED.description,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			max_uses = EXCLUDED.max_uses,
			max_discount = EXCLUDED.max_discount,
			active = TRUE`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up an active coupon by its code (case-insensitive).
// Returns coupon.ErrInvalidCoupon when no matching active coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanCouponRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &rule, nil
}

// IncrementUses consumes one use. The limit is re-checked in the UPDATE so
// concurrent redemptions cannot exceed MaxUses.
func (r *CouponRepository) IncrementUses(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, incrementCouponUsesSQL, code)
	if err != nil {
		return fmt.Errorf("incrementing uses for coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrCouponUsageLimitReached
	}
	return nil
}

// Upsert inserts or replaces a coupon rule and reactivates it. Uses are kept.
func (r *CouponRepository) Upsert(ctx context.Context, rule coupon.Rule) error {
	_, err := r.pool.Exec(ctx, upsertCouponSQL,
		rule.Code, string(rule.DiscountType), rule.Value, rule.MinItems, rule.Description,
		rule.ValidFrom, rule.ValidUntil, rule.MaxUses, rule.MaxDiscount,
	)
	if err != nil {
		return fmt.Errorf("upserting coupon %q: %w", rule.Code, err)
	}
	return nil
}

// UpsertBatch upserts rules in a single round trip.
func (r *CouponRepository) UpsertBatch(ctx context.Context, rules []coupon.Rule) error {
	if len(rules) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rule := range rules {
		batch.Queue(upsertCouponSQL,
			rule.Code, string(rule.DiscountType), rule.Value, rule.MinItems, rule.Description,
			rule.ValidFrom, rule.ValidUntil, rule.MaxUses, rule.MaxDiscount,
		)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting %d coupons: %w", len(rules), err)
	}
	return nil
}

func scanCouponRule(row pgx.CollectableRow) (coupon.Rule, error) {
	var (
		rule         coupon.Rule
		discountType string
		validFrom    *time.Time
		validUntil   *time.Time
	)
	err := row.Scan(
		&rule.Code, &discountType, &rule.Value, &rule.MinItems, &rule.Description,
		&validFrom, &validUntil, &rule.MaxUses, &rule.Uses, &rule.MaxDiscount,
	)
	rule.DiscountType = coupon.DiscountType(discountType)
	rule.ValidFrom = validFrom
	rule.ValidUntil = validUntil
	return rule, err
}
