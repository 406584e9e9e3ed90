package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// PendingOrderStore implements domain.PendingOrderStore using PostgreSQL.
// Deleted orders are soft-deleted and no longer loaded.
type PendingOrderStore struct {
	pool *pgxpool.Pool
}

// NewPendingOrderStore creates a new PendingOrderStore backed by the given pool.
func NewPendingOrderStore(pool *pgxpool.Pool) *PendingOrderStore {
	return &PendingOrderStore{pool: pool}
}

const pendingSelectCols = `id, symbol, side, volume, price, order_type,
	placed_at, expires_at, account_id, account_name, strategy, risk_level,
	margin_required, tags`

func scanPendingRow(row pgx.Row) (domain.PendingOrder, error) {
	var o domain.PendingOrder
	var side, orderType, risk string
	var expires *time.Time

	err := row.Scan(
		&o.ID, &o.Symbol, &side, &o.Volume, &o.Price, &orderType,
		&o.Time, &expires, &o.AccountID, &o.AccountName, &o.Strategy, &risk,
		&o.MarginRequired, &o.Tags,
	)
	if err != nil {
		return domain.PendingOrder{}, err
	}
	o.Type = domain.Direction(side)
	o.OrderType = domain.OrderType(orderType)
	o.RiskLevel = domain.RiskLevel(risk)
	if expires != nil {
		o.Expiry = *expires
	}
	return o, nil
}

// Create inserts a pending order. Existing ids are left untouched.
func (s *PendingOrderStore) Create(ctx context.Context, o domain.PendingOrder) error {
	return createPending(ctx, s.pool, o)
}

func createPending(ctx context.Context, db execer, o domain.PendingOrder) error {
	const query = `
		INSERT INTO pending_orders (
			id, symbol, side, volume, price, order_type,
			placed_at, expires_at, account_id, account_name, strategy, risk_level,
			margin_required, tags
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14
		) ON CONFLICT (id) DO NOTHING`

	var expires *time.Time
	if !o.Expiry.IsZero() {
		expires = &o.Expiry
	}
	_, err := db.Exec(ctx, query,
		o.ID, o.Symbol, string(o.Type), o.Volume, o.Price, string(o.OrderType),
		o.Time, expires, o.AccountID, o.AccountName, o.Strategy, string(o.RiskLevel),
		o.MarginRequired, nonNilTags(o.Tags),
	)
	if err != nil {
		return fmt.Errorf("postgres: create pending order %s: %w", o.ID, err)
	}
	return nil
}

// Delete soft-deletes a pending order.
func (s *PendingOrderStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pending_orders SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete pending order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: delete pending order %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
