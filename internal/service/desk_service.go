package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/metrics"
	"github.com/alanyoungcy/tradedesk/internal/notify"
	"github.com/alanyoungcy/tradedesk/internal/records"
	"github.com/alanyoungcy/tradedesk/internal/session"
	"github.com/alanyoungcy/tradedesk/internal/view"
)

// DeskConfig holds the dependencies shared by every session's DeskService.
// Only Logger is required; a nil store, lock manager, bus, audit log or
// notifier is skipped.
type DeskConfig struct {
	Positions domain.PositionStore
	Pending   domain.PendingOrderStore
	Locks     domain.LockManager
	Bus       domain.SignalBus
	Audit     domain.AuditStore
	Notifier  *notify.Notifier

	LockTTL          time.Duration
	CommissionPerLot float64
	// ContractSize converts quantity in lots to units for realized PnL.
	ContractSize     float64
	SettleTimeout    time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

// Desk builds per-session DeskServices around shared infrastructure.
type Desk struct {
	cfg DeskConfig
}

// NewDesk creates a Desk.
func NewDesk(cfg DeskConfig) *Desk {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Second
	}
	if cfg.ContractSize <= 0 {
		cfg.ContractSize = 100000
	}
	return &Desk{cfg: cfg}
}

// Collaborators satisfies session.CollaboratorFactory.
func (d *Desk) Collaborators(sessionID, userID string, store *records.Store) session.Collaborators {
	svc := d.ForSession(sessionID, userID, store)
	return session.Collaborators{Committer: svc, Settler: svc, Deleter: svc}
}

// ForSession returns the DeskService of one session.
func (d *Desk) ForSession(sessionID, userID string, store *records.Store) *DeskService {
	return &DeskService{
		cfg:       d.cfg,
		sessionID: sessionID,
		userID:    userID,
		store:     store,
		logger: d.cfg.Logger.With(
			slog.String("component", "desk_service"),
			slog.String("session_id", sessionID),
		),
	}
}

// DeskService is the system-of-record side of one operator session. It
// persists edits, settles close intents and deletes pending orders, then
// mirrors each change into the session's record store, activity log, event
// bus, audit log and operator alerts.
type DeskService struct {
	cfg       DeskConfig
	sessionID string
	userID    string
	store     *records.Store
	logger    *slog.Logger
}

var (
	_ domain.EditCommitter = (*DeskService)(nil)
	_ domain.CloseSettler  = (*DeskService)(nil)
	_ domain.RecordDeleter = (*DeskService)(nil)
)

// CommitEdit persists an edited position. The session store is updated by
// the lifecycle controller once this returns nil.
func (s *DeskService) CommitEdit(ctx context.Context, updated domain.Position) (err error) {
	defer func() { metrics.RecordDeskOp("edit", err) }()

	unlock, err := s.lock(ctx, updated.ID)
	if err != nil {
		return fmt.Errorf("desk_service: commit edit %s: %w", updated.ID, err)
	}
	defer unlock()

	if s.cfg.Positions != nil {
		if err := s.cfg.Positions.Update(ctx, updated); err != nil {
			return fmt.Errorf("desk_service: commit edit %s: %w", updated.ID, err)
		}
	}

	details := fmt.Sprintf("TP %s, SL %s, qty %s, risk %s",
		decimal.NewFromFloat(updated.TakeProfit).String(),
		decimal.NewFromFloat(updated.StopLoss).String(),
		decimal.NewFromFloat(updated.Quantity).String(),
		updated.RiskLevel,
	)
	s.recordActivity(ctx, domain.ActivityEntry{
		Level:    domain.ActivityInfo,
		Category: domain.CategoryEdit,
		Message:  fmt.Sprintf("Edited %s %s", updated.ID, updated.Symbol),
		Details:  details,
		Tags:     []string{updated.ID, updated.Symbol},
	})
	s.publish(ctx, domain.ChannelPositions, domain.EventPositionEdited, view.TablePositions, updated.ID, updated)
	s.audit(ctx, domain.EventPositionEdited, map[string]any{
		"session_id":  s.sessionID,
		"user_id":     s.userID,
		"position_id": updated.ID,
		"take_profit": updated.TakeProfit,
		"stop_loss":   updated.StopLoss,
		"quantity":    updated.Quantity,
		"risk_level":  string(updated.RiskLevel),
		"strategy":    updated.Strategy,
		"tags":        updated.Tags,
	})
	s.notify(ctx, notify.Alert{
		Event: domain.EventPositionEdited,
		Title: "Position edited",
		Fields: []notify.Field{
			{Name: "position", Value: updated.ID},
			{Name: "symbol", Value: updated.Symbol},
			{Name: "user", Value: s.userID},
			{Name: "changes", Value: details},
		},
	})

	s.logger.InfoContext(ctx, "desk_service: position edited",
		slog.String("position_id", updated.ID),
		slog.String("symbol", updated.Symbol),
	)
	return nil
}

// Settle answers a close intent. Business refusals come back as a rejected
// CloseAck; infrastructure failures come back as errors.
func (s *DeskService) Settle(ctx context.Context, intent domain.CloseIntent) (domain.CloseAck, error) {
	started := s.cfg.Now()
	if s.cfg.SettleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SettleTimeout)
		defer cancel()
	}

	ack, err := s.settle(ctx, intent)
	outcome := "accepted"
	switch {
	case err != nil:
		outcome = "error"
		s.notify(ctx, notify.Alert{
			Event: domain.EventDeskError,
			Title: "Close settlement failed",
			Fields: []notify.Field{
				{Name: "position", Value: intent.PositionID},
				{Name: "intent", Value: intent.IntentID},
				{Name: "user", Value: s.userID},
				{Name: "error", Value: err.Error()},
			},
		})
	case !ack.Accepted:
		outcome = "rejected"
	}
	metrics.RecordSettlement(string(intent.CloseType), outcome, s.cfg.Now().Sub(started))
	return ack, err
}

func (s *DeskService) settle(ctx context.Context, intent domain.CloseIntent) (domain.CloseAck, error) {
	reject := func(msg string) (domain.CloseAck, error) {
		s.logger.WarnContext(ctx, "desk_service: close rejected",
			slog.String("intent_id", intent.IntentID),
			slog.String("position_id", intent.PositionID),
			slog.String("reason", msg),
		)
		return domain.CloseAck{IntentID: intent.IntentID, Accepted: false, Message: msg, SettledAt: s.cfg.Now().UTC()}, nil
	}

	unlock, err := s.lock(ctx, intent.PositionID)
	if errors.Is(err, domain.ErrLockHeld) {
		return reject("position is being settled by another operator")
	}
	if err != nil {
		return domain.CloseAck{}, fmt.Errorf("desk_service: settle %s: %w", intent.PositionID, err)
	}
	defer unlock()

	pos, ok := s.store.Lookup(intent.PositionID)
	if !ok {
		return reject("position is no longer open")
	}
	if intent.Quantity <= 0 || decimal.NewFromFloat(intent.Quantity).GreaterThan(decimal.NewFromFloat(pos.Quantity)) {
		return reject(fmt.Sprintf("close quantity %v exceeds open quantity %v", intent.Quantity, pos.Quantity))
	}
	if intent.Price <= 0 {
		return reject("close price must be positive")
	}

	now := s.cfg.Now().UTC()
	closed := s.closedFrom(pos, intent, now)

	if s.cfg.Positions != nil {
		if err := s.cfg.Positions.ApplyClose(ctx, intent, closed); err != nil {
			return domain.CloseAck{}, fmt.Errorf("desk_service: settle %s: %w", intent.PositionID, err)
		}
	}
	if err := s.store.ApplyClose(intent, closed); err != nil {
		return domain.CloseAck{}, fmt.Errorf("desk_service: settle %s: %w", intent.PositionID, err)
	}
	metrics.RecordNetProfit(closed.NetProfit)

	kind := "Closed"
	if intent.Partial {
		kind = "Partially closed"
	}
	level := domain.ActivityInfo
	if closed.NetProfit < 0 {
		level = domain.ActivityWarning
	}
	net := decimal.NewFromFloat(closed.NetProfit).StringFixed(2)
	s.recordActivity(ctx, domain.ActivityEntry{
		Level:    level,
		Category: domain.CategoryClose,
		Message:  fmt.Sprintf("%s %s %s", kind, pos.ID, pos.Symbol),
		Details: fmt.Sprintf("%s %s @ %s (%s), net %s",
			intent.CloseType, decimal.NewFromFloat(intent.Quantity).String(),
			decimal.NewFromFloat(intent.Price).String(), intent.Reason, net),
		Tags: []string{pos.ID, pos.Symbol, string(intent.Reason)},
	})
	s.publish(ctx, domain.ChannelPositions, domain.EventPositionClosed, view.TablePositions, pos.ID, closed)
	s.audit(ctx, domain.EventPositionClosed, map[string]any{
		"session_id":  s.sessionID,
		"user_id":     s.userID,
		"intent_id":   intent.IntentID,
		"position_id": pos.ID,
		"close_type":  string(intent.CloseType),
		"reason":      string(intent.Reason),
		"comment":     intent.Comment,
		"quantity":    intent.Quantity,
		"price":       intent.Price,
		"partial":     intent.Partial,
		"profit_loss": closed.ProfitLoss,
		"net_profit":  closed.NetProfit,
	})
	s.notify(ctx, notify.Alert{
		Event: domain.EventPositionClosed,
		Title: kind + " position",
		Fields: []notify.Field{
			{Name: "position", Value: pos.ID},
			{Name: "symbol", Value: pos.Symbol},
			{Name: "account", Value: pos.AccountName},
			{Name: "quantity", Value: decimal.NewFromFloat(intent.Quantity).String()},
			{Name: "price", Value: decimal.NewFromFloat(intent.Price).String()},
			{Name: "reason", Value: string(intent.Reason)},
			{Name: "net", Value: net},
		},
	})

	s.logger.InfoContext(ctx, "desk_service: position closed",
		slog.String("intent_id", intent.IntentID),
		slog.String("position_id", pos.ID),
		slog.Bool("partial", intent.Partial),
		slog.Float64("net_profit", closed.NetProfit),
	)

	return domain.CloseAck{
		IntentID:  intent.IntentID,
		Accepted:  true,
		Message:   kind,
		SettledAt: now,
		Closed:    &closed,
	}, nil
}

// closedFrom builds the closed record for the quantity being closed.
// Partial closes get their own id so the closed table keeps one row per
// settlement.
func (s *DeskService) closedFrom(pos domain.Position, intent domain.CloseIntent, now time.Time) domain.ClosedPosition {
	qty := decimal.NewFromFloat(intent.Quantity)
	share := qty.Div(decimal.NewFromFloat(pos.Quantity))

	gross := decimal.NewFromFloat(domain.RealizedPnL(pos, intent.Quantity, intent.Price)).
		Mul(decimal.NewFromFloat(s.cfg.ContractSize)).Round(2)
	commission := decimal.NewFromFloat(s.cfg.CommissionPerLot).Mul(qty).Round(2)
	swap := decimal.Zero

	c := domain.ClosedPosition{
		Position:   pos.Clone(),
		ClosePrice: intent.Price,
		CloseTime:  now,
		ProfitLoss: gross.InexactFloat64(),
		Swap:       swap.InexactFloat64(),
		Commission: commission.InexactFloat64(),
		NetProfit:  gross.Sub(swap).Sub(commission).InexactFloat64(),
		Duration:   now.Sub(pos.OpenTime),
		Status:     domain.ClosedStatusCompleted,
	}
	c.Quantity = intent.Quantity
	c.CurrentPrice = intent.Price
	c.MarginUsed = decimal.NewFromFloat(pos.MarginUsed).Mul(share).Round(2).InexactFloat64()
	c.UnrealizedPnL = 0
	if intent.Partial {
		c.ID = pos.ID + "-" + shortID(intent.IntentID)
	}
	if c.Duration < 0 {
		c.Duration = 0
	}
	return c
}

// DeleteRecord deletes a pending order. Other tables are read-only.
func (s *DeskService) DeleteRecord(ctx context.Context, table, id string) (err error) {
	defer func() { metrics.RecordDeskOp("delete", err) }()

	if table != view.TablePending {
		return fmt.Errorf("desk_service: delete from %s: %w", table, domain.ErrUnknownTable)
	}
	order, ok := s.store.LookupPending(id)
	if !ok {
		return fmt.Errorf("desk_service: delete %s: %w", id, domain.ErrNotFound)
	}

	unlock, err := s.lock(ctx, id)
	if err != nil {
		return fmt.Errorf("desk_service: delete %s: %w", id, err)
	}
	defer unlock()

	if s.cfg.Pending != nil {
		if err := s.cfg.Pending.Delete(ctx, id); err != nil {
			return fmt.Errorf("desk_service: delete %s: %w", id, err)
		}
	}
	if err := s.store.RemovePending(id); err != nil {
		return fmt.Errorf("desk_service: delete %s: %w", id, err)
	}

	s.recordActivity(ctx, domain.ActivityEntry{
		Level:    domain.ActivityWarning,
		Category: domain.CategoryDelete,
		Message:  fmt.Sprintf("Deleted pending order %s", id),
		Details: fmt.Sprintf("%s %s %s @ %s", order.OrderType, order.Type, order.Symbol,
			decimal.NewFromFloat(order.Price).String()),
		Tags: []string{id, order.Symbol},
	})
	s.publish(ctx, domain.ChannelOrders, domain.EventRecordDeleted, table, id, order)
	s.audit(ctx, domain.EventRecordDeleted, map[string]any{
		"session_id": s.sessionID,
		"user_id":    s.userID,
		"table":      table,
		"record_id":  id,
		"symbol":     order.Symbol,
	})
	s.notify(ctx, notify.Alert{
		Event: domain.EventRecordDeleted,
		Title: "Pending order deleted",
		Fields: []notify.Field{
			{Name: "order", Value: id},
			{Name: "symbol", Value: order.Symbol},
			{Name: "account", Value: order.AccountName},
			{Name: "user", Value: s.userID},
		},
	})

	s.logger.InfoContext(ctx, "desk_service: pending order deleted", slog.String("order_id", id))
	return nil
}

func (s *DeskService) lock(ctx context.Context, id string) (func(), error) {
	if s.cfg.Locks == nil {
		return func() {}, nil
	}
	return s.cfg.Locks.Acquire(ctx, "position:"+id, s.cfg.LockTTL)
}

func (s *DeskService) recordActivity(ctx context.Context, entry domain.ActivityEntry) {
	entry.ID = uuid.NewString()
	entry.Time = s.cfg.Now().UTC()
	entry.UserID = s.userID
	s.store.Record(entry)
	s.publish(ctx, domain.ChannelActivity, string(entry.Category), view.TableActivity, entry.ID, entry)
}

// publish sends a desk event on channel and appends it to the event
// stream. Failures are logged, never returned.
func (s *DeskService) publish(ctx context.Context, channel, typ, table, id string, data any) {
	if s.cfg.Bus == nil {
		return
	}
	evt, err := json.Marshal(domain.DeskEvent{
		ID:        uuid.NewString(),
		Type:      typ,
		Channel:   channel,
		SessionID: s.sessionID,
		UserID:    s.userID,
		Table:     table,
		RecordID:  id,
		At:        s.cfg.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "desk_service: marshal event failed", slog.String("error", err.Error()))
		return
	}
	if err := s.cfg.Bus.Publish(ctx, channel, evt); err != nil {
		s.logger.WarnContext(ctx, "desk_service: publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
	if err := s.cfg.Bus.StreamAppend(ctx, domain.EventStream, evt); err != nil {
		s.logger.WarnContext(ctx, "desk_service: stream append failed", slog.String("error", err.Error()))
	}
}

func (s *DeskService) audit(ctx context.Context, event string, detail map[string]any) {
	if s.cfg.Audit == nil {
		return
	}
	if err := s.cfg.Audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "desk_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *DeskService) notify(ctx context.Context, alert notify.Alert) {
	if err := s.cfg.Notifier.Notify(ctx, alert); err != nil {
		s.logger.WarnContext(ctx, "desk_service: notify failed",
			slog.String("event", alert.Event),
			slog.String("error", err.Error()),
		)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
