package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/till/internal/domain/counterparty"
)

const counterpartyColumns = `id, kind, name, business_type, current_balance, pending_balance,
		credit_limit, rating, reliability`

const (
	getCounterpartyByIDSQL = `SELECT ` + counterpartyColumns + ` FROM counterparties WHERE id = $1`

	listCounterpartiesByKindSQL = `SELECT ` + counterpartyColumns + `
		FROM counterparties WHERE kind = $1 ORDER BY name, id`

	upsertCounterpartySQL = `INSERT INTO counterparties (` + counterpartyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			name = EXCLUDED.name,
			business_type = EXCLUDED.business_type,
			current_balance = EXCLUDED.current_balance,
			pending_balance = EXCLUDED.pending_balance,
			credit_limit = EXCLUDED.credit_limit,
			rating = EXCLUDED.rating,
			reliability = EXCLUDED.reliability`
)

var _ counterparty.Repository = (*CounterpartyRepository)(nil)

// CounterpartyRepository reads customers and suppliers. Balances are owned
// by the ledger and only written by seeding.
type CounterpartyRepository struct {
	pool *pgxpool.Pool
}

// NewCounterpartyRepository returns a CounterpartyRepository that uses the given pool.
func NewCounterpartyRepository(pool *pgxpool.Pool) *CounterpartyRepository {
	return &CounterpartyRepository{pool: pool}
}

// GetByID returns a counterparty or counterparty.ErrNotFound.
func (r *CounterpartyRepository) GetByID(ctx context.Context, id string) (*counterparty.Counterparty, error) {
	rows, err := r.pool.Query(ctx, getCounterpartyByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting counterparty %q: %w", id, err)
	}

	cp, err := pgx.CollectExactlyOneRow(rows, scanCounterparty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, counterparty.ErrNotFound
		}
		return nil, fmt.Errorf("getting counterparty %q: %w", id, err)
	}
	return &cp, nil
}

// ListByKind returns all customers or all suppliers.
func (r *CounterpartyRepository) ListByKind(ctx context.Context, kind counterparty.Kind) ([]counterparty.Counterparty, error) {
	rows, err := r.pool.Query(ctx, listCounterpartiesByKindSQL, string(kind))
	if err != nil {
		return nil, fmt.Errorf("listing %s counterparties: %w", kind, err)
	}
	return pgx.CollectRows(rows, scanCounterparty)
}

// Upsert inserts or replaces a counterparty.
func (r *CounterpartyRepository) Upsert(ctx context.Context, cp counterparty.Counterparty) error {
	_, err := r.pool.Exec(ctx, upsertCounterpartySQL,
		cp.ID, string(cp.Kind), cp.Name, string(cp.BusinessType),
		cp.CurrentBalance, cp.PendingBalance, cp.CreditLimit,
		cp.Rating, cp.Reliability,
	)
	if err != nil {
		return fmt.Errorf("upserting counterparty %q: %w", cp.ID, err)
	}
	return nil
}

func scanCounterparty(row pgx.CollectableRow) (counterparty.Counterparty, error) {
	var (
		cp           counterparty.Counterparty
		kind         string
		businessType string
	)
	err := row.Scan(
		&cp.ID, &kind, &cp.Name, &businessType,
		&cp.CurrentBalance, &cp.PendingBalance, &cp.CreditLimit,
		&cp.Rating, &cp.Reliability,
	)
	cp.Kind = counterparty.Kind(kind)
	cp.BusinessType = counterparty.ParseBusinessType(businessType)
	return cp, err
}
