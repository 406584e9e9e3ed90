package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/lifecycle"
	"github.com/alanyoungcy/tradedesk/internal/records"
	"github.com/alanyoungcy/tradedesk/internal/view"
)

// CollaboratorFactory builds the collaborators of a new session around its
// record store.
type CollaboratorFactory func(sessionID, userID string, store *records.Store) Collaborators

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Source       domain.RecordSource
	Collaborate  CollaboratorFactory
	PageSize     int
	IdleTTL      time.Duration
	SweepEvery   time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
	OnTransition func(axis, event string)
	// OnCount receives the number of open sessions after every change.
	OnCount func(n int)
}

// Manager creates, finds and expires sessions.
type Manager struct {
	cfg    ManagerConfig
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a Manager. Zero durations disable expiry.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SweepEvery <= 0 && cfg.IdleTTL > 0 {
		cfg.SweepEvery = cfg.IdleTTL / 4
	}
	return &Manager{
		cfg:      cfg,
		logger:   cfg.Logger.With(slog.String("component", "session_manager")),
		sessions: make(map[string]*Session),
	}
}

// Create loads a fresh copy of the records and opens a session on it.
func (m *Manager) Create(ctx context.Context, userID string) (*Session, error) {
	store, err := records.Load(ctx, m.cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("session: create: %w", err)
	}

	id := uuid.NewString()
	var collab Collaborators
	if m.cfg.Collaborate != nil {
		collab = m.cfg.Collaborate(id, userID, store)
	}

	tables := make(map[string]*TableState, len(view.Tables))
	for _, name := range view.Tables {
		ts, err := newTableState(name, m.cfg.PageSize)
		if err != nil {
			return nil, fmt.Errorf("session: create: %w", err)
		}
		tables[name] = ts
	}

	now := m.cfg.Now()
	s := &Session{
		ID:        id,
		UserID:    userID,
		CreatedAt: now,
		store:     store,
		tables:    tables,
		deleter:   collab.Deleter,
		lifecycle: lifecycle.New(store, collab.Committer, collab.Settler, lifecycle.Options{
			Logger:       m.logger.With(slog.String("session_id", id)),
			Now:          m.cfg.Now,
			OnTransition: m.cfg.OnTransition,
		}),
	}
	s.touch(now)

	store.Record(domain.ActivityEntry{
		ID:       uuid.NewString(),
		Time:     now.UTC(),
		Level:    domain.ActivityInfo,
		Category: domain.CategorySession,
		UserID:   userID,
		Message:  "Session started",
		Details:  fmt.Sprintf("%d active, %d pending, %d closed", len(store.Active()), len(store.Pending()), len(store.Closed())),
	})

	m.mu.Lock()
	m.sessions[id] = s
	n := len(m.sessions)
	m.mu.Unlock()
	m.counted(n)

	m.logger.Info("session created",
		slog.String("session_id", id),
		slog.String("user_id", userID),
	)
	return s, nil
}

// Get returns a session by id and marks it as seen.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session: %s: %w", id, domain.ErrNotFound)
	}
	s.touch(m.cfg.Now())
	return s, nil
}

// Remove drops a session. It reports whether the session existed.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	if ok {
		m.logger.Info("session removed", slog.String("session_id", id))
		m.counted(n)
	}
	return ok
}

func (m *Manager) counted(n int) {
	if m.cfg.OnCount != nil {
		m.cfg.OnCount(n)
	}
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes sessions idle for longer than the configured TTL and
// returns how many were removed.
func (m *Manager) Sweep(now time.Time) int {
	if m.cfg.IdleTTL <= 0 {
		return 0
	}
	m.mu.Lock()
	removed := 0
	for id, s := range m.sessions {
		if now.Sub(s.LastSeen()) > m.cfg.IdleTTL {
			delete(m.sessions, id)
			removed++
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()
	if removed > 0 {
		m.logger.Info("expired idle sessions", slog.Int("count", removed))
		m.counted(n)
	}
	return removed
}

// Run expires idle sessions until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	if m.cfg.IdleTTL <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(m.cfg.SweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Sweep(m.cfg.Now())
		}
	}
}
