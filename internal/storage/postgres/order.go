package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/till/internal/domain/order"
	"github.com/xenking/till/internal/domain/pricing"
)

const (
	createOrderSQL = `INSERT INTO orders (id, flow, counterparty_id, items, subtotal, discount_amount,
			tax_amount, total, payment_method, payment_amount, coupon_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	getOrderByIDSQL = `SELECT id::text, flow, counterparty_id, items, subtotal, discount_amount,
			tax_amount, total, payment_method, payment_amount, coupon_code, created_at
		FROM orders WHERE id = $1`
)

// ErrOrderNotFound is returned by GetByID for unknown ids.
var ErrOrderNotFound = errors.New("order not found")

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. The submission items are serialized to JSON
// for storage in the JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Submission.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	s := o.Submission
	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, string(o.Flow), o.CounterpartyID, itemsJSON,
		s.Subtotal, s.DiscountAmount, s.TaxAmount, s.Total,
		s.Payment.Method, s.Payment.Amount, o.CouponCode, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	return nil
}

// GetByID reads an order back.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o         order.Order
		flow      string
		itemsJSON []byte
		createdAt time.Time
	)
	s := &o.Submission
	if err := row.Scan(
		&o.ID, &flow, &o.CounterpartyID, &itemsJSON,
		&s.Subtotal, &s.DiscountAmount, &s.TaxAmount, &s.Total,
		&s.Payment.Method, &s.Payment.Amount, &o.CouponCode, &createdAt,
	); err != nil {
		return o, err
	}
	if err := json.Unmarshal(itemsJSON, &s.Items); err != nil {
		return o, fmt.Errorf("unmarshaling order items: %w", err)
	}
	o.Flow = pricing.Flow(flow)
	o.CreatedAt = createdAt.UTC()
	return o, nil
}
