package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// RecordSource implements domain.RecordSource over the positions,
// pending_orders and closed_positions tables.
type RecordSource struct {
	pool *pgxpool.Pool
	// ClosedLimit caps how many closed positions are loaded, newest first.
	ClosedLimit int
}

// NewRecordSource creates a RecordSource backed by the given pool.
func NewRecordSource(pool *pgxpool.Pool) *RecordSource {
	return &RecordSource{pool: pool, ClosedLimit: 1000}
}

// LoadActive returns every open position, oldest first.
func (s *RecordSource) LoadActive(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE status = 'open' ORDER BY open_time, id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load active positions: %w", err)
	}
	defer rows.Close()

	out := []domain.Position{}
	for rows.Next() {
		p, err := scanPositionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load active positions rows: %w", err)
	}
	return out, nil
}

// LoadPending returns every live pending order, oldest first.
func (s *RecordSource) LoadPending(ctx context.Context) ([]domain.PendingOrder, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pendingSelectCols+` FROM pending_orders WHERE deleted_at IS NULL ORDER BY placed_at, id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load pending orders: %w", err)
	}
	defer rows.Close()

	out := []domain.PendingOrder{}
	for rows.Next() {
		o, err := scanPendingRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan pending order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load pending orders rows: %w", err)
	}
	return out, nil
}

const closedSelectCols = `id, position_id, account_id, account_name, symbol, direction,
	quantity, entry_price, close_price, take_profit, stop_loss, margin_used,
	leverage, strategy, risk_level, tags, open_time, close_time,
	profit_loss, swap, commission, net_profit, duration_seconds, status`

func scanClosedRow(row pgx.Row) (domain.ClosedPosition, error) {
	var c domain.ClosedPosition
	var direction, risk, status string
	var seconds int64

	err := row.Scan(
		&c.ID, &c.PositionID, &c.AccountID, &c.AccountName, &c.Symbol, &direction,
		&c.Quantity, &c.EntryPrice, &c.ClosePrice, &c.TakeProfit, &c.StopLoss, &c.MarginUsed,
		&c.Leverage, &c.Strategy, &risk, &c.Tags, &c.OpenTime, &c.CloseTime,
		&c.ProfitLoss, &c.Swap, &c.Commission, &c.NetProfit, &seconds, &status,
	)
	if err != nil {
		return domain.ClosedPosition{}, err
	}
	c.Direction = domain.Direction(direction)
	c.RiskLevel = domain.RiskLevel(risk)
	c.Status = domain.ClosedStatus(status)
	c.Duration = time.Duration(seconds) * time.Second
	c.CurrentPrice = c.ClosePrice
	return c, nil
}

// LoadClosed returns the most recent closed positions, newest first.
func (s *RecordSource) LoadClosed(ctx context.Context) ([]domain.ClosedPosition, error) {
	query := `SELECT ` + closedSelectCols + ` FROM closed_positions ORDER BY close_time DESC, id`
	args := []any{}
	if s.ClosedLimit > 0 {
		query += " LIMIT $1"
		args = append(args, s.ClosedLimit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: load closed positions: %w", err)
	}
	defer rows.Close()

	out := []domain.ClosedPosition{}
	for rows.Next() {
		c, err := scanClosedRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan closed position: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load closed positions rows: %w", err)
	}
	return out, nil
}

func insertClosed(ctx context.Context, db execer, c domain.ClosedPosition, intent domain.CloseIntent) error {
	const query = `
		INSERT INTO closed_positions (
			id, position_id, account_id, account_name, symbol, direction,
			quantity, entry_price, close_price, take_profit, stop_loss, margin_used,
			leverage, strategy, risk_level, tags, open_time, close_time,
			profit_loss, swap, commission, net_profit, duration_seconds, status,
			intent_id, close_reason, close_comment
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23, $24,
			NULLIF($25, ''), $26, $27
		) ON CONFLICT (id) DO NOTHING`

	_, err := db.Exec(ctx, query,
		c.ID, c.PositionID, c.AccountID, c.AccountName, c.Symbol, string(c.Direction),
		c.Quantity, c.EntryPrice, c.ClosePrice, c.TakeProfit, c.StopLoss, c.MarginUsed,
		c.Leverage, c.Strategy, string(c.RiskLevel), nonNilTags(c.Tags), c.OpenTime, c.CloseTime,
		c.ProfitLoss, c.Swap, c.Commission, c.NetProfit, int64(c.Duration/time.Second), string(c.Status),
		intent.IntentID, string(intent.Reason), intent.Comment,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert closed position %s: %w", c.ID, err)
	}
	return nil
}

// Import writes a full set of records in one transaction, skipping ids that
// already exist. It is used to load fixtures into an empty database.
func (s *RecordSource) Import(ctx context.Context, active []domain.Position, pending []domain.PendingOrder, closed []domain.ClosedPosition) error {
	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, p := range active {
			if err := createPosition(ctx, tx, p); err != nil {
				return err
			}
		}
		for _, o := range pending {
			if err := createPending(ctx, tx, o); err != nil {
				return err
			}
		}
		for _, c := range closed {
			if err := insertClosed(ctx, tx, c, domain.CloseIntent{}); err != nil {
				return err
			}
		}
		return nil
	})
}
