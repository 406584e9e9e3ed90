package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/filter"
	"github.com/alanyoungcy/tradedesk/internal/lifecycle"
	"github.com/alanyoungcy/tradedesk/internal/paginate"
	"github.com/alanyoungcy/tradedesk/internal/records"
	"github.com/alanyoungcy/tradedesk/internal/view"
)

type memSource struct {
	active  []domain.Position
	pending []domain.PendingOrder
	closed  []domain.ClosedPosition
}

func (m memSource) LoadActive(context.Context) ([]domain.Position, error)   { return m.active, nil }
func (m memSource) LoadPending(context.Context) ([]domain.PendingOrder, error) { return m.pending, nil }
func (m memSource) LoadClosed(context.Context) ([]domain.ClosedPosition, error) {
	return m.closed, nil
}

func fifteen() memSource {
	src := memSource{}
	for i := 1; i <= 15; i++ {
		risk := domain.RiskLow
		if i%3 == 0 {
			risk = domain.RiskHigh
		}
		src.active = append(src.active, domain.Position{
			ID:           fmt.Sprintf("AT-%03d", i),
			AccountID:    fmt.Sprintf("ACC-%d", i%2),
			AccountName:  fmt.Sprintf("Account %d", i%2),
			Symbol:       "EURUSD",
			Quantity:     1,
			CurrentPrice: 1.1,
			MarginUsed:   100,
			RiskLevel:    risk,
		})
	}
	src.pending = []domain.PendingOrder{{ID: "PO-1", AccountID: "ACC-1", Symbol: "GBPUSD"}}
	return src
}

type recordingDeleter struct {
	store *records.Store
	calls []string
}

func (d *recordingDeleter) DeleteRecord(_ context.Context, table, id string) error {
	d.calls = append(d.calls, table+"/"+id)
	if table != view.TablePending {
		return domain.ErrUnknownTable
	}
	return d.store.RemovePending(id)
}

func newManager(t *testing.T, del **recordingDeleter) *Manager {
	t.Helper()
	return NewManager(ManagerConfig{
		Source:   fifteen(),
		PageSize: 5,
		Collaborate: func(_, _ string, store *records.Store) Collaborators {
			d := &recordingDeleter{store: store}
			if del != nil {
				*del = d
			}
			return Collaborators{Deleter: d}
		},
	})
}

func TestFifteenPositionsPaging(t *testing.T) {
	m := newManager(t, nil)
	s, err := m.Create(context.Background(), "ops-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	tbl, err := s.Table(view.TablePositions)
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	if tbl.Window.TotalPages != 3 || len(tbl.Rows) != 5 {
		t.Fatalf("window = %+v rows %d", tbl.Window, len(tbl.Rows))
	}
	tbl, _ = s.MovePage(view.TablePositions, PageGoTo, 5)
	if tbl.Window.Page != 3 || tbl.Window.StartIndex != 10 || tbl.Window.EndIndex != 15 {
		t.Fatalf("goto 5 window = %+v", tbl.Window)
	}
	if tbl.Rows[0].ID != "AT-011" {
		t.Fatalf("first row on page 3 = %s", tbl.Rows[0].ID)
	}

	tbl, _ = s.SetPageSize(view.TablePositions, 10)
	if tbl.Window.Page != 1 {
		t.Fatalf("page after size change = %d", tbl.Window.Page)
	}
	if _, err := s.SetPageSize(view.TablePositions, 3); !errors.Is(err, domain.ErrInvalidField) {
		t.Fatalf("SetPageSize(3) err = %v", err)
	}
}

func TestFilterChangeResetsPage(t *testing.T) {
	m := newManager(t, nil)
	s, _ := m.Create(context.Background(), "ops-1")
	_, _ = s.MovePage(view.TablePositions, PageNext, 0)
	tbl, _ := s.MovePage(view.TablePositions, PageNext, 0)
	if tbl.Window.Page != 3 {
		t.Fatalf("page = %d", tbl.Window.Page)
	}

	tbl, _ = s.SetSelections(view.TablePositions, filter.Selections{"risk": "high"})
	if tbl.Window.Page != 1 || tbl.Window.Total != 5 {
		t.Fatalf("after selection window = %+v", tbl.Window)
	}
	tbl, _ = s.SetQuery(view.TablePositions, "nothing-matches")
	if tbl.Window.Total != 0 || len(tbl.Rows) != 0 || tbl.Window.Page != 1 {
		t.Fatalf("empty result = %+v", tbl)
	}
}

func TestColumns(t *testing.T) {
	m := newManager(t, nil)
	s, _ := m.Create(context.Background(), "ops-1")
	tbl, err := s.SetAllColumns(view.TablePending, false)
	if err != nil || len(tbl.Headers) != 0 {
		t.Fatalf("SetAllColumns = %+v, %v", tbl.Headers, err)
	}
	tbl, _ = s.ToggleColumn(view.TablePending, "symbol")
	if len(tbl.Headers) != 1 || tbl.Rows[0].Cells[0] != "GBPUSD" {
		t.Fatalf("after toggle = %+v", tbl)
	}
	if _, err := s.ToggleColumn(view.TablePending, "bogus"); !errors.Is(err, domain.ErrUnknownColumn) {
		t.Fatalf("toggle bogus err = %v", err)
	}
	if _, err := s.Table("orders"); !errors.Is(err, domain.ErrUnknownTable) {
		t.Fatalf("unknown table err = %v", err)
	}
}

func TestAccountClickSuppressesRow(t *testing.T) {
	m := newManager(t, nil)
	s, _ := m.Create(context.Background(), "ops-1")
	ev := &Event{Table: view.TablePositions, RecordID: "AT-003", Target: TargetAccount}
	out, err := s.Dispatch(context.Background(), ev)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !ev.Handled() || out.Kind != OutcomeAccount {
		t.Fatalf("outcome = %+v handled=%v", out, ev.Handled())
	}
	sum := out.Result.(records.AccountSummary)
	if sum.AccountID != "ACC-1" || len(sum.Positions) != 8 {
		t.Fatalf("account summary = %s with %d positions", sum.AccountID, len(sum.Positions))
	}
	if s.Lifecycle().Phase != lifecycle.PhaseIdle {
		t.Fatal("account click opened the row details")
	}
}

func TestCloseClickDoesNotOpenDetails(t *testing.T) {
	m := newManager(t, nil)
	s, _ := m.Create(context.Background(), "ops-1")
	out, err := s.Dispatch(context.Background(), &Event{Table: view.TablePositions, RecordID: "AT-001", Target: TargetClose})
	if err != nil || out.Kind != OutcomeClose {
		t.Fatalf("Dispatch = %+v, %v", out, err)
	}
	snap := s.Lifecycle()
	if !snap.Closing || snap.Phase != lifecycle.PhaseIdle {
		t.Fatalf("snapshot = %+v", snap)
	}

	out, err = s.Dispatch(context.Background(), &Event{Table: view.TablePositions, RecordID: "AT-002", Target: TargetRow})
	if err != nil || out.Kind != OutcomeDetails {
		t.Fatalf("row Dispatch = %+v, %v", out, err)
	}
	snap = s.Lifecycle()
	if snap.Phase != lifecycle.PhaseViewing || snap.Selected.ID != "AT-002" || snap.CloseTarget.ID != "AT-001" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestDeleteClick(t *testing.T) {
	var del *recordingDeleter
	m := newManager(t, &del)
	s, _ := m.Create(context.Background(), "ops-1")
	out, err := s.Dispatch(context.Background(), &Event{Table: view.TablePending, RecordID: "PO-1", Target: TargetDelete})
	if err != nil || out.Kind != OutcomeDeleted {
		t.Fatalf("Dispatch = %+v, %v", out, err)
	}
	if len(del.calls) != 1 || len(s.Store().Pending()) != 0 {
		t.Fatalf("calls %v pending %d", del.calls, len(s.Store().Pending()))
	}
	if _, err := s.Dispatch(context.Background(), &Event{Table: view.TablePending, RecordID: "PO-1", Target: "hover"}); !errors.Is(err, domain.ErrInvalidField) {
		t.Fatalf("bad target err = %v", err)
	}
}

func TestRowClickOnOtherTables(t *testing.T) {
	m := newManager(t, nil)
	s, _ := m.Create(context.Background(), "ops-1")
	out, err := s.Dispatch(context.Background(), &Event{Table: view.TablePending, RecordID: "PO-1", Target: TargetRow})
	if err != nil || out.Kind != OutcomeRecord {
		t.Fatalf("Dispatch = %+v, %v", out, err)
	}
	if _, ok := out.Result.(domain.PendingOrder); !ok {
		t.Fatalf("result type %T", out.Result)
	}
	if s.Lifecycle().Phase != lifecycle.PhaseIdle {
		t.Fatal("pending row opened position details")
	}
}

func TestEditFlowThroughSession(t *testing.T) {
	m := newManager(t, nil)
	s, _ := m.Create(context.Background(), "ops-1")
	ctx := context.Background()
	if _, err := s.OpenDetails("AT-004"); err != nil {
		t.Fatal(err)
	}
	_, _ = s.EnterEditMode()
	_, _ = s.UpdateEditField(lifecycle.FieldStopLoss, "1.05")
	snap, err := s.CommitEdit(ctx)
	if err != nil || snap.Phase != lifecycle.PhaseIdle {
		t.Fatalf("CommitEdit = %+v, %v", snap, err)
	}
	if p, _ := s.Store().Lookup("AT-004"); p.StopLoss != 1.05 {
		t.Fatalf("stopLoss = %v", p.StopLoss)
	}
	if _, err := s.OpenDetails("missing"); !errors.Is(err, domain.ErrStale) {
		t.Fatalf("OpenDetails(missing) err = %v", err)
	}
	_, _, err = s.ConfirmClose(ctx)
	if err != nil {
		t.Fatalf("ConfirmClose with nothing open: %v", err)
	}
}

func TestManagerLifecycle(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManager(ManagerConfig{
		Source:  fifteen(),
		IdleTTL: time.Minute,
		Now:     func() time.Time { return now },
	})
	s, err := m.Create(context.Background(), "ops-1")
	if err != nil {
		t.Fatal(err)
	}
	if got, err := m.Get(s.ID); err != nil || got != s {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if _, err := m.Get("nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get(nope) err = %v", err)
	}
	if len(s.Store().Activity()) != 1 {
		t.Fatal("session start not logged")
	}
	if tbl, _ := s.Table(view.TablePositions); tbl.Window.PageSize != paginate.DefaultPageSize {
		t.Fatalf("default page size = %d", tbl.Window.PageSize)
	}

	if n := m.Sweep(now.Add(30 * time.Second)); n != 0 {
		t.Fatalf("swept %d fresh sessions", n)
	}
	if n := m.Sweep(now.Add(2 * time.Minute)); n != 1 || m.Len() != 0 {
		t.Fatalf("swept %d, %d left", n, m.Len())
	}

	s2, _ := m.Create(context.Background(), "ops-2")
	if !m.Remove(s2.ID) || m.Remove(s2.ID) {
		t.Fatal("Remove did not report existence")
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	m := newManager(t, nil)
	a, _ := m.Create(context.Background(), "ops-1")
	b, _ := m.Create(context.Background(), "ops-2")
	_ = a.Store().RemovePending("PO-1")
	if len(b.Store().Pending()) != 1 {
		t.Fatal("sessions share records")
	}
}
