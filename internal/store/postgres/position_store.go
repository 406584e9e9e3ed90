package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, position_id, account_id, account_name, symbol, direction,
	quantity, entry_price, current_price, take_profit, stop_loss,
	margin_used, unrealized_pnl, leverage, strategy, risk_level,
	tags, open_time, device_info`

func scanPositionRow(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var direction, risk string

	err := row.Scan(
		&p.ID, &p.PositionID, &p.AccountID, &p.AccountName, &p.Symbol, &direction,
		&p.Quantity, &p.EntryPrice, &p.CurrentPrice, &p.TakeProfit, &p.StopLoss,
		&p.MarginUsed, &p.UnrealizedPnL, &p.Leverage, &p.Strategy, &risk,
		&p.Tags, &p.OpenTime, &p.DeviceInfo,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Direction = domain.Direction(direction)
	p.RiskLevel = domain.RiskLevel(risk)
	return p, nil
}

// Create inserts a new open position. Existing ids are left untouched.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	return createPosition(ctx, s.pool, p)
}

func createPosition(ctx context.Context, db execer, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, position_id, account_id, account_name, symbol, direction,
			quantity, entry_price, current_price, take_profit, stop_loss,
			margin_used, unrealized_pnl, leverage, strategy, risk_level,
			tags, open_time, device_info
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18, $19
		) ON CONFLICT (id) DO NOTHING`

	_, err := db.Exec(ctx, query,
		p.ID, p.PositionID, p.AccountID, p.AccountName, p.Symbol, string(p.Direction),
		p.Quantity, p.EntryPrice, p.CurrentPrice, p.TakeProfit, p.StopLoss,
		p.MarginUsed, p.UnrealizedPnL, p.Leverage, p.Strategy, string(p.RiskLevel),
		nonNilTags(p.Tags), p.OpenTime, p.DeviceInfo,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// Update writes the operator-editable fields of an open position.
func (s *PositionStore) Update(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE positions SET
			take_profit = $2,
			stop_loss   = $3,
			quantity    = $4,
			risk_level  = $5,
			strategy    = $6,
			tags        = $7,
			updated_at  = NOW()
		WHERE id = $1 AND status = 'open'`

	tag, err := s.pool.Exec(ctx, query,
		p.ID, p.TakeProfit, p.StopLoss, p.Quantity,
		string(p.RiskLevel), p.Strategy, nonNilTags(p.Tags),
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update position %s: %w", p.ID, domain.ErrNotFound)
	}
	return nil
}

// ApplyClose reduces or closes the position named by intent and records the
// closed trade, atomically. A repeated intent id is rejected by the unique
// constraint on closed_positions.intent_id.
func (s *PositionStore) ApplyClose(ctx context.Context, intent domain.CloseIntent, closed domain.ClosedPosition) error {
	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		var qty, margin, upnl float64
		err := tx.QueryRow(ctx,
			`SELECT quantity, margin_used, unrealized_pnl FROM positions
			 WHERE id = $1 AND status = 'open' FOR UPDATE`, intent.PositionID,
		).Scan(&qty, &margin, &upnl)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("postgres: close position %s: %w", intent.PositionID, domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("postgres: lock position %s: %w", intent.PositionID, err)
		}

		total := decimal.NewFromFloat(qty)
		remaining := total.Sub(decimal.NewFromFloat(intent.Quantity))
		if remaining.IsNegative() {
			return fmt.Errorf("postgres: close %g of %s holding %g: %w", intent.Quantity, intent.PositionID, qty, domain.ErrInvalidField)
		}

		if remaining.IsZero() {
			_, err = tx.Exec(ctx,
				`UPDATE positions SET status = 'closed', quantity = 0, updated_at = NOW() WHERE id = $1`,
				intent.PositionID)
		} else {
			ratio := remaining.Div(total)
			_, err = tx.Exec(ctx,
				`UPDATE positions SET quantity = $2, margin_used = $3, unrealized_pnl = $4, updated_at = NOW()
				 WHERE id = $1`,
				intent.PositionID,
				remaining.InexactFloat64(),
				decimal.NewFromFloat(margin).Mul(ratio).Round(2).InexactFloat64(),
				decimal.NewFromFloat(upnl).Mul(ratio).Round(2).InexactFloat64(),
			)
		}
		if err != nil {
			return fmt.Errorf("postgres: reduce position %s: %w", intent.PositionID, err)
		}

		if err := insertClosed(ctx, tx, closed, intent); err != nil {
			return err
		}
		return nil
	})
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
