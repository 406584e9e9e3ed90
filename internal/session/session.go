// Package session owns the dashboard state of one operator: the record
// collections, per-table view state and the position lifecycle.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/filter"
	"github.com/alanyoungcy/tradedesk/internal/lifecycle"
	"github.com/alanyoungcy/tradedesk/internal/records"
	"github.com/alanyoungcy/tradedesk/internal/view"
)

// Collaborators are the systems a session hands edits, closes and deletes
// to.
type Collaborators struct {
	Committer domain.EditCommitter
	Settler   domain.CloseSettler
	Deleter   domain.RecordDeleter
}

// Session is one operator's view. Every method serializes on the session
// mutex, so events are processed one at a time in arrival order.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time

	lastSeen atomic.Int64

	mu        sync.Mutex
	store     *records.Store
	tables    map[string]*TableState
	lifecycle *lifecycle.Controller
	deleter   domain.RecordDeleter
}

func (s *Session) touch(now time.Time) { s.lastSeen.Store(now.UnixNano()) }

// LastSeen returns the time of the last operation on the session.
func (s *Session) LastSeen() time.Time { return time.Unix(0, s.lastSeen.Load()) }

// Store exposes the session's records.
func (s *Session) Store() *records.Store { return s.store }

func (s *Session) table(name string) (*TableState, error) {
	ts, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("session: table %q: %w", name, domain.ErrUnknownTable)
	}
	return ts, nil
}

// Stats returns the dashboard header figures.
func (s *Session) Stats() records.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Stats()
}

// Table returns the current page of the named table.
func (s *Session) Table(name string) (view.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.build(name, false)
}

// Export returns every record of the named table that passes the current
// filter, projected onto the visible columns.
func (s *Session) Export(name string) (view.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.build(name, true)
}

func (s *Session) build(name string, all bool) (view.Table, error) {
	ts, err := s.table(name)
	if err != nil {
		return view.Table{}, err
	}
	switch name {
	case view.TablePositions:
		return project(view.PositionSchema, s.store.Active(), ts, all), nil
	case view.TablePending:
		return project(view.PendingSchema, s.store.Pending(), ts, all), nil
	case view.TableClosed:
		return project(view.ClosedSchema, s.store.Closed(), ts, all), nil
	default:
		return project(view.ActivitySchema, s.store.Activity(), ts, all), nil
	}
}

func (s *Session) matches(name string, ts *TableState) int {
	switch name {
	case view.TablePositions:
		return countMatches(s.store.Active(), ts)
	case view.TablePending:
		return countMatches(s.store.Pending(), ts)
	case view.TableClosed:
		return countMatches(s.store.Closed(), ts)
	default:
		return countMatches(s.store.Activity(), ts)
	}
}

// SetQuery changes the free-text query of a table and returns to page 1.
func (s *Session) SetQuery(name, query string) (view.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, err := s.table(name)
	if err != nil {
		return view.Table{}, err
	}
	ts.Query = query
	ts.Pages.Reset()
	return s.build(name, false)
}

// SetSelections replaces the discrete filter selections of a table and
// returns to page 1.
func (s *Session) SetSelections(name string, sel filter.Selections) (view.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, err := s.table(name)
	if err != nil {
		return view.Table{}, err
	}
	ts.Selections = sel.Clone()
	ts.Pages.Reset()
	return s.build(name, false)
}

// PageMove is a pagination command.
type PageMove string

const (
	PageNext     PageMove = "next"
	PagePrevious PageMove = "previous"
	PageGoTo     PageMove = "goto"
)

// MovePage applies a pagination command. Moves past either end are
// no-ops; GoTo clamps.
func (s *Session) MovePage(name string, move PageMove, page int) (view.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, err := s.table(name)
	if err != nil {
		return view.Table{}, err
	}
	total := s.matches(name, ts)
	switch move {
	case PageNext:
		ts.Pages.Next(total)
	case PagePrevious:
		ts.Pages.Previous(total)
	case PageGoTo:
		ts.Pages.GoTo(page, total)
	default:
		return view.Table{}, fmt.Errorf("session: page move %q: %w", move, domain.ErrInvalidField)
	}
	return s.build(name, false)
}

// SetPageSize changes the page size of a table; the page returns to 1.
func (s *Session) SetPageSize(name string, size int) (view.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, err := s.table(name)
	if err != nil {
		return view.Table{}, err
	}
	if err := ts.Pages.SetPageSize(size); err != nil {
		return view.Table{}, fmt.Errorf("session: %w: %w", domain.ErrInvalidField, err)
	}
	return s.build(name, false)
}

// ToggleColumn flips one column of a table.
func (s *Session) ToggleColumn(name, key string) (view.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, err := s.table(name)
	if err != nil {
		return view.Table{}, err
	}
	if _, err := ts.Columns.Toggle(key); err != nil {
		return view.Table{}, err
	}
	return s.build(name, false)
}

// SetAllColumns shows or hides every column of a table.
func (s *Session) SetAllColumns(name string, visible bool) (view.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, err := s.table(name)
	if err != nil {
		return view.Table{}, err
	}
	ts.Columns.SetAll(visible)
	return s.build(name, false)
}

// Account returns the read-only summary of one account.
func (s *Session) Account(accountID string) (records.AccountSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Account(accountID)
}

// Delete hands a delete request for one record to the deleter.
func (s *Session) Delete(ctx context.Context, name, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delete(ctx, name, id)
}

func (s *Session) delete(ctx context.Context, name, id string) error {
	if _, err := s.table(name); err != nil {
		return err
	}
	if s.deleter == nil {
		return fmt.Errorf("session: delete %s/%s: no deleter configured: %w", name, id, domain.ErrRejected)
	}
	return s.deleter.DeleteRecord(ctx, name, id)
}

// Dispatch routes a row interaction. Account, close and delete controls
// consume the event before it reaches the row handler, so a click on a
// nested control never also opens the row.
func (s *Session) Dispatch(ctx context.Context, ev *Event) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !ev.Target.Valid() {
		return Outcome{}, fmt.Errorf("session: event target %q: %w", ev.Target, domain.ErrInvalidField)
	}
	if _, err := s.table(ev.Table); err != nil {
		return Outcome{}, err
	}
	out := Outcome{Table: ev.Table, ID: ev.RecordID}

	for _, h := range []func(context.Context, *Event, *Outcome) error{
		s.handleAccount,
		s.handleClose,
		s.handleDelete,
	} {
		if err := h(ctx, ev, &out); err != nil {
			return Outcome{}, err
		}
		if ev.Handled() {
			return out, nil
		}
	}
	if err := s.handleRow(ev, &out); err != nil {
		return Outcome{}, err
	}
	return out, nil
}

func (s *Session) handleAccount(_ context.Context, ev *Event, out *Outcome) error {
	if ev.Target != TargetAccount {
		return nil
	}
	ev.Consume()
	accountID, err := s.accountOf(ev.Table, ev.RecordID)
	if err != nil {
		return err
	}
	sum, err := s.store.Account(accountID)
	if err != nil {
		return err
	}
	out.Kind, out.Result = OutcomeAccount, sum
	return nil
}

func (s *Session) handleClose(_ context.Context, ev *Event, out *Outcome) error {
	if ev.Target != TargetClose {
		return nil
	}
	ev.Consume()
	if ev.Table != view.TablePositions {
		return fmt.Errorf("session: close on %s: %w", ev.Table, domain.ErrUnknownTable)
	}
	p, ok := s.store.Lookup(ev.RecordID)
	if !ok {
		return fmt.Errorf("session: close %s: %w", ev.RecordID, domain.ErrNotFound)
	}
	if err := s.lifecycle.RequestClose(p); err != nil {
		return err
	}
	out.Kind, out.Result = OutcomeClose, s.lifecycle.Snapshot()
	return nil
}

func (s *Session) handleDelete(ctx context.Context, ev *Event, out *Outcome) error {
	if ev.Target != TargetDelete {
		return nil
	}
	ev.Consume()
	if err := s.delete(ctx, ev.Table, ev.RecordID); err != nil {
		return err
	}
	out.Kind = OutcomeDeleted
	return nil
}

func (s *Session) handleRow(ev *Event, out *Outcome) error {
	if ev.Table == view.TablePositions {
		p, ok := s.store.Lookup(ev.RecordID)
		if !ok {
			return fmt.Errorf("session: row %s: %w", ev.RecordID, domain.ErrNotFound)
		}
		if err := s.lifecycle.OpenDetails(p); err != nil {
			return err
		}
		out.Kind, out.Result = OutcomeDetails, s.lifecycle.Snapshot()
		return nil
	}
	rec, err := s.record(ev.Table, ev.RecordID)
	if err != nil {
		return err
	}
	out.Kind, out.Result = OutcomeRecord, rec
	return nil
}

func (s *Session) record(table, id string) (any, error) {
	switch table {
	case view.TablePositions:
		if p, ok := s.store.Lookup(id); ok {
			return p, nil
		}
	case view.TablePending:
		for _, o := range s.store.Pending() {
			if o.ID == id {
				return o, nil
			}
		}
	case view.TableClosed:
		for _, c := range s.store.Closed() {
			if c.ID == id {
				return c, nil
			}
		}
	case view.TableActivity:
		for _, a := range s.store.Activity() {
			if a.ID == id {
				return a, nil
			}
		}
	}
	return nil, fmt.Errorf("session: %s/%s: %w", table, id, domain.ErrNotFound)
}

func (s *Session) accountOf(table, id string) (string, error) {
	rec, err := s.record(table, id)
	if err != nil {
		return "", err
	}
	switch r := rec.(type) {
	case domain.Position:
		return r.AccountID, nil
	case domain.PendingOrder:
		return r.AccountID, nil
	case domain.ClosedPosition:
		return r.AccountID, nil
	}
	return "", fmt.Errorf("session: %s has no account: %w", table, domain.ErrInvalidField)
}

// Lifecycle returns the current lifecycle state.
func (s *Session) Lifecycle() lifecycle.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lifecycle.Snapshot()
}

// OpenDetails opens the detail dialog for an active position.
func (s *Session) OpenDetails(id string) (lifecycle.Snapshot, error) {
	return s.withPosition(id, s.lifecycle.OpenDetails)
}

// RequestClose opens the close dialog for an active position.
func (s *Session) RequestClose(id string) (lifecycle.Snapshot, error) {
	return s.withPosition(id, s.lifecycle.RequestClose)
}

func (s *Session) withPosition(id string, fn func(domain.Position) error) (lifecycle.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.store.Lookup(id)
	if !ok {
		p = domain.Position{ID: id}
	}
	err := fn(p)
	return s.lifecycle.Snapshot(), err
}

// EnterEditMode switches the detail dialog to editing.
func (s *Session) EnterEditMode() (lifecycle.Snapshot, error) {
	return s.step(s.lifecycle.EnterEditMode)
}

// ExitEditMode switches the detail dialog back to viewing.
func (s *Session) ExitEditMode() (lifecycle.Snapshot, error) {
	return s.step(s.lifecycle.ExitEditMode)
}

// UpdateEditField changes one field of the edit draft.
func (s *Session) UpdateEditField(field string, value any) (lifecycle.Snapshot, error) {
	return s.step(func() error { return s.lifecycle.UpdateEditField(field, value) })
}

// UpdateEditFields applies a batch of draft updates; none apply if one
// fails.
func (s *Session) UpdateEditFields(updates []lifecycle.FieldValue) (lifecycle.Snapshot, error) {
	return s.step(func() error { return s.lifecycle.UpdateEditFields(updates) })
}

// CommitEdit saves the edit draft.
func (s *Session) CommitEdit(ctx context.Context) (lifecycle.Snapshot, error) {
	return s.step(func() error {
		_, err := s.lifecycle.CommitEdit(ctx)
		return err
	})
}

// CancelDetails closes the detail dialog.
func (s *Session) CancelDetails() lifecycle.Snapshot {
	snap, _ := s.step(func() error {
		s.lifecycle.CancelDetails()
		return nil
	})
	return snap
}

// UpdateCloseField changes one field of the close form.
func (s *Session) UpdateCloseField(field string, value any) (lifecycle.Snapshot, error) {
	return s.step(func() error { return s.lifecycle.UpdateCloseField(field, value) })
}

// UpdateCloseFields applies a batch of close form updates; none apply if
// one fails.
func (s *Session) UpdateCloseFields(updates []lifecycle.FieldValue) (lifecycle.Snapshot, error) {
	return s.step(func() error { return s.lifecycle.UpdateCloseFields(updates) })
}

// ConfirmClose submits the close form and waits for settlement.
func (s *Session) ConfirmClose(ctx context.Context) (domain.CloseAck, lifecycle.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ack, err := s.lifecycle.ConfirmClose(ctx)
	return ack, s.lifecycle.Snapshot(), err
}

// CancelClose closes the close dialog.
func (s *Session) CancelClose() lifecycle.Snapshot {
	snap, _ := s.step(func() error {
		s.lifecycle.CancelClose()
		return nil
	})
	return snap
}

func (s *Session) step(fn func() error) (lifecycle.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := fn()
	return s.lifecycle.Snapshot(), err
}
