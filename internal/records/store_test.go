package records

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

func sample() *Store {
	active := []domain.Position{
		{ID: "AT-001", AccountID: "ACC-1", AccountName: "Alpha", Quantity: 1, MarginUsed: 100.10, UnrealizedPnL: 10.20, RiskLevel: domain.RiskLow, Tags: []string{"fx"}},
		{ID: "AT-002", AccountID: "ACC-2", AccountName: "Beta", Quantity: 0.5, MarginUsed: 200.20, UnrealizedPnL: -5.10, RiskLevel: domain.RiskHigh},
		{ID: "AT-003", AccountID: "ACC-1", AccountName: "Alpha", Quantity: 2, MarginUsed: 0.30, UnrealizedPnL: 0.10, RiskLevel: domain.RiskHigh},
	}
	pending := []domain.PendingOrder{
		{ID: "PO-1", AccountID: "ACC-1", AccountName: "Alpha"},
		{ID: "PO-2", AccountID: "ACC-3", AccountName: "Gamma"},
	}
	closed := []domain.ClosedPosition{
		{Position: domain.Position{ID: "CL-1", AccountID: "ACC-1"}, ProfitLoss: 12, NetProfit: 10},
		{Position: domain.Position{ID: "CL-2", AccountID: "ACC-2"}, ProfitLoss: -3, NetProfit: -4},
		{Position: domain.Position{ID: "CL-3", AccountID: "ACC-2"}, ProfitLoss: 0, NetProfit: -1},
		{Position: domain.Position{ID: "CL-4", AccountID: "ACC-1"}, ProfitLoss: 7, NetProfit: 6.5},
	}
	return New(active, pending, closed)
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestAggregates(t *testing.T) {
	s := sample()
	if got := s.TotalMarginUsed(); !near(got, 300.60) {
		t.Errorf("TotalMarginUsed = %v, want 300.60", got)
	}
	if got := s.TotalUnrealizedPnL(); !near(got, 5.20) {
		t.Errorf("TotalUnrealizedPnL = %v, want 5.20", got)
	}
	rc := s.RiskCounts()
	if rc[domain.RiskLow] != 1 || rc[domain.RiskHigh] != 2 || rc[domain.RiskMedium] != 0 {
		t.Errorf("RiskCounts = %v", rc)
	}
	if _, ok := rc[domain.RiskMedium]; !ok {
		t.Error("RiskCounts omits Medium")
	}
	if got := s.WinRate(); !near(got, 0.5) {
		t.Errorf("WinRate = %v, want 0.5", got)
	}

	st := s.Stats()
	if st.ActiveCount != 3 || st.PendingCount != 2 || st.ClosedCount != 4 {
		t.Errorf("Stats counts = %+v", st)
	}
	if !near(st.TotalNetProfit, 11.5) {
		t.Errorf("TotalNetProfit = %v", st.TotalNetProfit)
	}
}

func TestWinRateEmpty(t *testing.T) {
	if got := New(nil, nil, nil).WinRate(); got != 0 {
		t.Fatalf("WinRate on empty = %v", got)
	}
}

func TestReadsAreCopies(t *testing.T) {
	s := sample()
	a := s.Active()
	a[0].Symbol = "MUTATED"
	a[0].Tags[0] = "MUTATED"
	p, _ := s.Lookup("AT-001")
	if p.Symbol == "MUTATED" || p.Tags[0] == "MUTATED" {
		t.Fatal("Active() exposed internal state")
	}
}

func TestReplace(t *testing.T) {
	s := sample()
	p, ok := s.Lookup("AT-002")
	if !ok {
		t.Fatal("AT-002 missing")
	}
	p.TakeProfit = 1.26
	if err := s.Replace(p); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	active := s.Active()
	if active[1].ID != "AT-002" || active[1].TakeProfit != 1.26 {
		t.Fatalf("Replace did not write in place: %+v", active[1])
	}
	if err := s.Replace(domain.Position{ID: "missing"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Replace(missing) err = %v", err)
	}
}

func TestApplyCloseFull(t *testing.T) {
	s := sample()
	closed := domain.ClosedPosition{Position: domain.Position{ID: "AT-002"}, ProfitLoss: 4}
	err := s.ApplyClose(domain.CloseIntent{PositionID: "AT-002", Quantity: 0.5}, closed)
	if err != nil {
		t.Fatalf("ApplyClose: %v", err)
	}
	if _, ok := s.Lookup("AT-002"); ok {
		t.Fatal("fully closed position still active")
	}
	if c := s.Closed(); len(c) != 5 || c[0].ID != "AT-002" {
		t.Fatalf("closed collection = %d, first %s", len(c), c[0].ID)
	}
}

func TestApplyClosePartial(t *testing.T) {
	s := sample()
	err := s.ApplyClose(domain.CloseIntent{PositionID: "AT-003", Quantity: 0.5, Partial: true},
		domain.ClosedPosition{Position: domain.Position{ID: "AT-003"}})
	if err != nil {
		t.Fatalf("ApplyClose: %v", err)
	}
	p, ok := s.Lookup("AT-003")
	if !ok {
		t.Fatal("partially closed position removed")
	}
	if !near(p.Quantity, 1.5) {
		t.Errorf("quantity = %v, want 1.5", p.Quantity)
	}
	if !near(p.MarginUsed, 0.23) {
		t.Errorf("margin = %v, want 0.23", p.MarginUsed)
	}
	if err := s.ApplyClose(domain.CloseIntent{PositionID: "nope"}, domain.ClosedPosition{}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("ApplyClose(nope) err = %v", err)
	}
}

func TestRemovePending(t *testing.T) {
	s := sample()
	if o, ok := s.LookupPending("PO-1"); !ok || o.ID != "PO-1" {
		t.Fatalf("LookupPending(PO-1) = %+v, %v", o, ok)
	}
	if err := s.RemovePending("PO-1"); err != nil {
		t.Fatalf("RemovePending: %v", err)
	}
	if got := s.Pending(); len(got) != 1 || got[0].ID != "PO-2" {
		t.Fatalf("pending = %+v", got)
	}
	if err := s.RemovePending("PO-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second RemovePending err = %v", err)
	}
	if _, ok := s.LookupPending("PO-1"); ok {
		t.Error("removed order still found")
	}
}

func TestAccount(t *testing.T) {
	s := sample()
	sum, err := s.Account("ACC-1")
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if sum.AccountName != "Alpha" || len(sum.Positions) != 2 || len(sum.Pending) != 1 || sum.ClosedCount != 2 {
		t.Fatalf("summary = %+v", sum)
	}
	if !near(sum.TotalMarginUsed, 100.40) || !near(sum.RealizedNetProfit, 16.5) {
		t.Fatalf("summary sums = %+v", sum)
	}
	if sum, err := s.Account("ACC-3"); err != nil || sum.AccountName != "Gamma" {
		t.Fatalf("pending-only account = %+v, %v", sum, err)
	}
	if _, err := s.Account("ACC-9"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Account(ACC-9) err = %v", err)
	}
}

func TestActivityNewestFirst(t *testing.T) {
	s := New(nil, nil, nil)
	now := time.Now()
	s.Record(domain.ActivityEntry{ID: "1", Time: now})
	s.Record(domain.ActivityEntry{ID: "2", Time: now.Add(time.Second)})
	got := s.Activity()
	if len(got) != 2 || got[0].ID != "2" {
		t.Fatalf("Activity() = %+v", got)
	}
	for i := 0; i < maxActivity+10; i++ {
		s.Record(domain.ActivityEntry{ID: "x"})
	}
	if n := len(s.Activity()); n != maxActivity {
		t.Fatalf("activity length = %d, want %d", n, maxActivity)
	}
}

type fakeSource struct {
	err error
}

func (f fakeSource) LoadActive(context.Context) ([]domain.Position, error) {
	return []domain.Position{{ID: "A"}}, f.err
}

func (f fakeSource) LoadPending(context.Context) ([]domain.PendingOrder, error) {
	return nil, nil
}

func (f fakeSource) LoadClosed(context.Context) ([]domain.ClosedPosition, error) {
	return nil, nil
}

func TestLoad(t *testing.T) {
	s, err := Load(context.Background(), fakeSource{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(s.Active()) != 1 {
		t.Fatal("Load lost records")
	}
	boom := errors.New("boom")
	if _, err := Load(context.Background(), fakeSource{err: boom}); !errors.Is(err, boom) {
		t.Fatalf("Load err = %v", err)
	}
}
