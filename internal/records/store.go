// Package records holds the source collections of one dashboard view and
// derives read-only aggregates from them.
package records

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// maxActivity bounds the in-memory activity log.
const maxActivity = 500

// Store owns the Active, Pending and Closed collections for the lifetime
// of a view. Reads return copies; aggregates are computed on every call.
type Store struct {
	mu       sync.RWMutex
	active   []domain.Position
	pending  []domain.PendingOrder
	closed   []domain.ClosedPosition
	activity []domain.ActivityEntry
}

// New builds a Store from the given collections. The slices are copied.
func New(active []domain.Position, pending []domain.PendingOrder, closed []domain.ClosedPosition) *Store {
	s := &Store{
		active:  make([]domain.Position, 0, len(active)),
		pending: make([]domain.PendingOrder, 0, len(pending)),
		closed:  make([]domain.ClosedPosition, 0, len(closed)),
	}
	for _, p := range active {
		s.active = append(s.active, p.Clone())
	}
	for _, o := range pending {
		s.pending = append(s.pending, o.Clone())
	}
	for _, c := range closed {
		s.closed = append(s.closed, c.Clone())
	}
	return s
}

// Load reads all three collections from src and builds a Store.
func Load(ctx context.Context, src domain.RecordSource) (*Store, error) {
	active, err := src.LoadActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("records: load active: %w", err)
	}
	pending, err := src.LoadPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("records: load pending: %w", err)
	}
	closed, err := src.LoadClosed(ctx)
	if err != nil {
		return nil, fmt.Errorf("records: load closed: %w", err)
	}
	return New(active, pending, closed), nil
}

// Active returns a copy of the active positions in source order.
func (s *Store) Active() []domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Position, len(s.active))
	for i, p := range s.active {
		out[i] = p.Clone()
	}
	return out
}

// Pending returns a copy of the pending orders in source order.
func (s *Store) Pending() []domain.PendingOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PendingOrder, len(s.pending))
	for i, o := range s.pending {
		out[i] = o.Clone()
	}
	return out
}

// Closed returns a copy of the closed positions in source order.
func (s *Store) Closed() []domain.ClosedPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ClosedPosition, len(s.closed))
	for i, c := range s.closed {
		out[i] = c.Clone()
	}
	return out
}

// Activity returns the activity log, newest first.
func (s *Store) Activity() []domain.ActivityEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ActivityEntry, len(s.activity))
	for i, a := range s.activity {
		out[len(s.activity)-1-i] = a
	}
	return out
}

// Record appends an entry to the activity log, dropping the oldest entry
// once the log is full.
func (s *Store) Record(entry domain.ActivityEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = append(s.activity, entry)
	if over := len(s.activity) - maxActivity; over > 0 {
		s.activity = append(s.activity[:0], s.activity[over:]...)
	}
}

// Lookup finds an active position by id.
func (s *Store) Lookup(id string) (domain.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexActive(id); i >= 0 {
		return s.active[i].Clone(), true
	}
	return domain.Position{}, false
}

// LookupPending finds a pending order by id.
func (s *Store) LookupPending(id string) (domain.PendingOrder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.pending {
		if o.ID == id {
			return o.Clone(), true
		}
	}
	return domain.PendingOrder{}, false
}

// Replace overwrites the active position with the same id, in place.
func (s *Store) Replace(p domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexActive(p.ID)
	if i < 0 {
		return fmt.Errorf("records: replace %s: %w", p.ID, domain.ErrNotFound)
	}
	s.active[i] = p.Clone()
	return nil
}

// ApplyClose removes the position named by intent, or reduces it when the
// close is partial, and prepends closed to the closed collection.
// Margin and unrealized PnL shrink in proportion to the remaining quantity.
func (s *Store) ApplyClose(intent domain.CloseIntent, closed domain.ClosedPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexActive(intent.PositionID)
	if i < 0 {
		return fmt.Errorf("records: apply close %s: %w", intent.PositionID, domain.ErrNotFound)
	}

	p := s.active[i]
	qty := decimal.NewFromFloat(p.Quantity)
	closeQty := decimal.NewFromFloat(intent.Quantity)
	remaining := qty.Sub(closeQty)

	if !remaining.IsPositive() {
		s.active = append(s.active[:i], s.active[i+1:]...)
	} else {
		ratio := remaining.Div(qty)
		p.Quantity = remaining.InexactFloat64()
		p.MarginUsed = decimal.NewFromFloat(p.MarginUsed).Mul(ratio).Round(2).InexactFloat64()
		p.UnrealizedPnL = decimal.NewFromFloat(p.UnrealizedPnL).Mul(ratio).Round(2).InexactFloat64()
		s.active[i] = p
	}

	s.closed = append([]domain.ClosedPosition{closed.Clone()}, s.closed...)
	return nil
}

// RemovePending deletes a pending order by id.
func (s *Store) RemovePending(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, o := range s.pending {
		if o.ID == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("records: remove pending %s: %w", id, domain.ErrNotFound)
}

func (s *Store) indexActive(id string) int {
	for i, p := range s.active {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// TotalMarginUsed returns the sum of marginUsed over active positions.
func (s *Store) TotalMarginUsed() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := decimal.Zero
	for _, p := range s.active {
		sum = sum.Add(decimal.NewFromFloat(p.MarginUsed))
	}
	return sum.InexactFloat64()
}

// TotalUnrealizedPnL returns the sum of unrealizedPnL over active positions.
func (s *Store) TotalUnrealizedPnL() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := decimal.Zero
	for _, p := range s.active {
		sum = sum.Add(decimal.NewFromFloat(p.UnrealizedPnL))
	}
	return sum.InexactFloat64()
}

// RiskCounts counts active positions per risk level. Every known level is
// present in the result, possibly with zero.
func (s *Store) RiskCounts() map[domain.RiskLevel]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.RiskLevel]int, len(domain.RiskLevels))
	for _, r := range domain.RiskLevels {
		out[r] = 0
	}
	for _, p := range s.active {
		out[p.RiskLevel]++
	}
	return out
}

// WinRate returns the share of closed positions with positive profitLoss,
// or 0 when there are none.
func (s *Store) WinRate() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.closed) == 0 {
		return 0
	}
	wins := 0
	for _, c := range s.closed {
		if c.Won() {
			wins++
		}
	}
	return float64(wins) / float64(len(s.closed))
}

// Stats bundles the dashboard header figures.
type Stats struct {
	ActiveCount        int                      `json:"activeCount"`
	PendingCount       int                      `json:"pendingCount"`
	ClosedCount        int                      `json:"closedCount"`
	TotalMarginUsed    float64                  `json:"totalMarginUsed"`
	TotalUnrealizedPnL float64                  `json:"totalUnrealizedPnL"`
	TotalNetProfit     float64                  `json:"totalNetProfit"`
	RiskCounts         map[domain.RiskLevel]int `json:"riskCounts"`
	WinRate            float64                  `json:"winRate"`
}

// Stats computes every aggregate from the current collections.
func (s *Store) Stats() Stats {
	st := Stats{
		TotalMarginUsed:    s.TotalMarginUsed(),
		TotalUnrealizedPnL: s.TotalUnrealizedPnL(),
		RiskCounts:         s.RiskCounts(),
		WinRate:            s.WinRate(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	st.ActiveCount = len(s.active)
	st.PendingCount = len(s.pending)
	st.ClosedCount = len(s.closed)
	net := decimal.Zero
	for _, c := range s.closed {
		net = net.Add(decimal.NewFromFloat(c.NetProfit))
	}
	st.TotalNetProfit = net.InexactFloat64()
	return st
}

// AccountSummary is the read-only view opened from an account id.
type AccountSummary struct {
	AccountID          string                `json:"accountId"`
	AccountName        string                `json:"accountName"`
	Positions          []domain.Position     `json:"positions"`
	Pending            []domain.PendingOrder `json:"pending"`
	ClosedCount        int                   `json:"closedCount"`
	TotalMarginUsed    float64               `json:"totalMarginUsed"`
	TotalUnrealizedPnL float64               `json:"totalUnrealizedPnL"`
	RealizedNetProfit  float64               `json:"realizedNetProfit"`
}

// Account summarizes every record belonging to accountID.
func (s *Store) Account(accountID string) (AccountSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := AccountSummary{
		AccountID: accountID,
		Positions: []domain.Position{},
		Pending:   []domain.PendingOrder{},
	}
	margin, upnl, net := decimal.Zero, decimal.Zero, decimal.Zero
	found := false

	for _, p := range s.active {
		if !strings.EqualFold(p.AccountID, accountID) {
			continue
		}
		found = true
		sum.AccountName = p.AccountName
		sum.Positions = append(sum.Positions, p.Clone())
		margin = margin.Add(decimal.NewFromFloat(p.MarginUsed))
		upnl = upnl.Add(decimal.NewFromFloat(p.UnrealizedPnL))
	}
	for _, o := range s.pending {
		if !strings.EqualFold(o.AccountID, accountID) {
			continue
		}
		found = true
		if sum.AccountName == "" {
			sum.AccountName = o.AccountName
		}
		sum.Pending = append(sum.Pending, o.Clone())
	}
	for _, c := range s.closed {
		if !strings.EqualFold(c.AccountID, accountID) {
			continue
		}
		found = true
		if sum.AccountName == "" {
			sum.AccountName = c.AccountName
		}
		sum.ClosedCount++
		net = net.Add(decimal.NewFromFloat(c.NetProfit))
	}

	if !found {
		return AccountSummary{}, fmt.Errorf("records: account %s: %w", accountID, domain.ErrNotFound)
	}
	sum.TotalMarginUsed = margin.InexactFloat64()
	sum.TotalUnrealizedPnL = upnl.InexactFloat64()
	sum.RealizedNetProfit = net.InexactFloat64()
	return sum, nil
}
