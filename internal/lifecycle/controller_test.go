package lifecycle

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/records"
)

func at002() domain.Position {
	return domain.Position{
		ID:            "AT-002",
		PositionID:    "POS-1002",
		AccountID:     "ACC-2",
		AccountName:   "Beta Fund",
		Symbol:        "GBPUSD",
		Direction:     domain.DirectionSell,
		Quantity:      0.5,
		EntryPrice:    1.2650,
		CurrentPrice:  1.2610,
		TakeProfit:    1.2550,
		StopLoss:      1.2700,
		MarginUsed:    632.50,
		UnrealizedPnL: 200,
		Leverage:      100,
		Strategy:      "Swing",
		RiskLevel:     domain.RiskMedium,
		Tags:          []string{"gbp", "swing"},
		OpenTime:      time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC),
	}
}

func at003() domain.Position {
	return domain.Position{ID: "AT-003", Symbol: "XAUUSD", Quantity: 2, CurrentPrice: 2030, RiskLevel: domain.RiskHigh}
}

type fakeCommitter struct {
	got []domain.Position
	err error
}

func (f *fakeCommitter) CommitEdit(_ context.Context, p domain.Position) error {
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, p)
	return nil
}

// fakeSettler applies accepted closes to the store like the desk service.
type fakeSettler struct {
	store   *records.Store
	reject  string
	err     error
	intents []domain.CloseIntent
}

func (f *fakeSettler) Settle(_ context.Context, in domain.CloseIntent) (domain.CloseAck, error) {
	f.intents = append(f.intents, in)
	if f.err != nil {
		return domain.CloseAck{}, f.err
	}
	if f.reject != "" {
		return domain.CloseAck{IntentID: in.IntentID, Message: f.reject}, nil
	}
	closed := domain.ClosedPosition{Position: domain.Position{ID: in.PositionID}}
	if err := f.store.ApplyClose(in, closed); err != nil {
		return domain.CloseAck{}, err
	}
	return domain.CloseAck{IntentID: in.IntentID, Accepted: true, Closed: &closed}, nil
}

func setup() (*Controller, *records.Store, *fakeCommitter, *fakeSettler) {
	store := records.New([]domain.Position{at002(), at003()}, nil, nil)
	com := &fakeCommitter{}
	set := &fakeSettler{store: store}
	fixed := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	c := New(store, com, set, Options{Now: func() time.Time { return fixed }})
	return c, store, com, set
}

func TestEditTakeProfitEndToEnd(t *testing.T) {
	c, store, com, _ := setup()
	ctx := context.Background()

	if err := c.OpenDetails(at002()); err != nil {
		t.Fatalf("OpenDetails: %v", err)
	}
	if err := c.EnterEditMode(); err != nil {
		t.Fatalf("EnterEditMode: %v", err)
	}
	if err := c.UpdateEditField(FieldTakeProfit, 1.26); err != nil {
		t.Fatalf("UpdateEditField: %v", err)
	}
	if _, err := c.CommitEdit(ctx); err != nil {
		t.Fatalf("CommitEdit: %v", err)
	}

	got, ok := store.Lookup("AT-002")
	if !ok {
		t.Fatal("AT-002 missing after commit")
	}
	want := at002()
	want.TakeProfit = 1.26
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("stored position\n got %+v\nwant %+v", got, want)
	}
	if c.Phase() != PhaseIdle {
		t.Fatalf("phase = %s, want idle", c.Phase())
	}
	if len(com.got) != 1 || com.got[0].TakeProfit != 1.26 {
		t.Fatalf("committer saw %+v", com.got)
	}
}

func TestCommitEditWithoutSelection(t *testing.T) {
	c, store, com, _ := setup()
	before := store.Active()
	p, err := c.CommitEdit(context.Background())
	if err != nil || p != nil {
		t.Fatalf("CommitEdit = %v, %v; want nil, nil", p, err)
	}
	if !reflect.DeepEqual(store.Active(), before) {
		t.Fatal("store changed")
	}
	if c.Phase() != PhaseIdle || len(com.got) != 0 {
		t.Fatalf("phase %s, commits %d", c.Phase(), len(com.got))
	}
}

func TestRequestCloseKeepsEditDraft(t *testing.T) {
	c, _, _, _ := setup()
	_ = c.OpenDetails(at003())
	_ = c.EnterEditMode()
	_ = c.UpdateEditField(FieldStopLoss, "2000.5")

	if err := c.RequestClose(at002()); err != nil {
		t.Fatalf("RequestClose: %v", err)
	}
	snap := c.Snapshot()
	if snap.Phase != PhaseEditing || snap.Selected.ID != "AT-003" {
		t.Fatalf("detail axis changed: %+v", snap)
	}
	if snap.Draft.StopLoss != 2000.5 {
		t.Fatalf("draft lost: %+v", snap.Draft)
	}
	if !snap.Closing || snap.CloseTarget.ID != "AT-002" {
		t.Fatalf("close axis = %+v", snap)
	}
	f := snap.CloseForm
	if f.CloseType != domain.CloseMarket || f.ClosePrice != 1.2610 || f.CloseQuantity != 0.5 || f.Reason != "" || f.Comment != "" {
		t.Fatalf("close form seed = %+v", f)
	}
}

func TestDraftSurvivesEditReentry(t *testing.T) {
	c, _, _, _ := setup()
	_ = c.OpenDetails(at002())
	_ = c.EnterEditMode()
	_ = c.UpdateEditField(FieldStopLoss, 1.28)
	_ = c.ExitEditMode()
	if c.Phase() != PhaseViewing {
		t.Fatalf("phase = %s", c.Phase())
	}
	_ = c.EnterEditMode()
	if got := c.Snapshot().Draft.StopLoss; got != 1.28 {
		t.Fatalf("draft stopLoss = %v, want 1.28", got)
	}

	// Opening details again seeds a fresh draft.
	_ = c.OpenDetails(at002())
	if got := c.Snapshot().Draft.StopLoss; got != 1.2700 {
		t.Fatalf("reseeded stopLoss = %v", got)
	}
}

func TestNonNumericEditInput(t *testing.T) {
	c, store, _, _ := setup()
	_ = c.OpenDetails(at002())
	_ = c.EnterEditMode()
	if err := c.UpdateEditField(FieldTakeProfit, "abc"); err != nil {
		t.Fatalf("UpdateEditField: %v", err)
	}
	snap := c.Snapshot()
	if snap.Draft.TakeProfit != 0 || snap.Draft.Invalid[FieldTakeProfit] == "" {
		t.Fatalf("draft = %+v", snap.Draft)
	}

	_, err := c.CommitEdit(context.Background())
	var verr *ValidationError
	if !errors.As(err, &verr) || !errors.Is(err, domain.ErrInvalidField) {
		t.Fatalf("CommitEdit err = %v", err)
	}
	if c.Phase() != PhaseEditing {
		t.Fatalf("phase after rejected commit = %s", c.Phase())
	}
	if p, _ := store.Lookup("AT-002"); p.TakeProfit != 1.2550 {
		t.Fatal("invalid draft reached the store")
	}

	_ = c.UpdateEditField(FieldTakeProfit, "1.25")
	if _, err := c.CommitEdit(context.Background()); err != nil {
		t.Fatalf("CommitEdit after fix: %v", err)
	}
}

func TestEditFieldRules(t *testing.T) {
	c, _, _, _ := setup()
	_ = c.OpenDetails(at002())
	if err := c.UpdateEditField(FieldTakeProfit, 1); !errors.Is(err, ErrNotEditing) {
		t.Fatalf("update while viewing err = %v", err)
	}
	_ = c.EnterEditMode()

	_ = c.UpdateEditField(FieldQuantity, 0)
	if c.Snapshot().Draft.Invalid[FieldQuantity] == "" {
		t.Error("zero quantity not flagged")
	}
	_ = c.UpdateEditField(FieldQuantity, 0.25)
	if _, bad := c.Snapshot().Draft.Invalid[FieldQuantity]; bad {
		t.Error("valid quantity still flagged")
	}
	_ = c.UpdateEditField(FieldTags, "a, b,,c ")
	if got := c.Snapshot().Draft.Tags; !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("tags = %v", got)
	}
	_ = c.UpdateEditField(FieldTags, []any{"x"})
	if got := c.Snapshot().Draft.Tags; !reflect.DeepEqual(got, []string{"x"}) {
		t.Errorf("tags = %v", got)
	}
	_ = c.UpdateEditField(FieldRiskLevel, "high")
	if got := c.Snapshot().Draft.RiskLevel; got != domain.RiskHigh {
		t.Errorf("risk = %v", got)
	}
	_ = c.UpdateEditField(FieldRiskLevel, "extreme")
	if c.Snapshot().Draft.Invalid[FieldRiskLevel] == "" {
		t.Error("unknown risk not flagged")
	}
	if err := c.UpdateEditField("leverage", 10); !errors.Is(err, domain.ErrUnknownField) {
		t.Errorf("unknown field err = %v", err)
	}
}

func TestPartialCloseBounds(t *testing.T) {
	c, _, _, _ := setup()
	_ = c.RequestClose(at002())

	for _, v := range []any{0.0, -1.0, 0.51, 5, "x"} {
		before := c.Snapshot().CloseForm
		err := c.UpdateCloseField(FieldCloseQuantity, v)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("closeQuantity %v: err = %v", v, err)
		}
		if after := c.Snapshot().CloseForm; *after != *before {
			t.Fatalf("closeQuantity %v changed the form: %+v", v, after)
		}
	}

	if err := c.UpdateCloseField(FieldCloseQuantity, 0.2); err != nil {
		t.Fatalf("valid partial: %v", err)
	}
	if f := c.Snapshot().CloseForm; !f.Partial || f.CloseQuantity != 0.2 {
		t.Fatalf("form = %+v", f)
	}
	if err := c.UpdateCloseField(FieldCloseQuantity, 0.5); err != nil {
		t.Fatalf("full quantity: %v", err)
	}
	if c.Snapshot().CloseForm.Partial {
		t.Fatal("full quantity still partial")
	}
}

func TestBatchUpdatesAreAllOrNothing(t *testing.T) {
	c, _, _, _ := setup()
	_ = c.OpenDetails(at002())

	if err := c.UpdateEditFields([]FieldValue{{FieldTakeProfit, 1.3}}); !errors.Is(err, ErrNotEditing) {
		t.Fatalf("batch while viewing: err = %v", err)
	}
	_ = c.EnterEditMode()

	err := c.UpdateEditFields([]FieldValue{
		{FieldTakeProfit, 1.3},
		{FieldStrategy, "Scalp"},
		{"leverage", 50},
	})
	if !errors.Is(err, domain.ErrUnknownField) {
		t.Fatalf("batch with unknown field: err = %v", err)
	}
	if d := c.Snapshot().Draft; d.TakeProfit != 1.2550 || d.Strategy != "Swing" {
		t.Fatalf("rejected batch changed the draft: %+v", d)
	}

	if err := c.UpdateEditFields([]FieldValue{{FieldTakeProfit, 1.3}, {FieldStrategy, "Scalp"}}); err != nil {
		t.Fatalf("valid batch: %v", err)
	}
	if d := c.Snapshot().Draft; d.TakeProfit != 1.3 || d.Strategy != "Scalp" {
		t.Fatalf("draft = %+v", d)
	}

	_ = c.RequestClose(at002())
	before := *c.Snapshot().CloseForm
	err = c.UpdateCloseFields([]FieldValue{
		{FieldClosePrice, 1.3},
		{FieldCloseReason, string(domain.ReasonManual)},
		{FieldCloseQuantity, 9},
	})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Fields[FieldCloseQuantity] == "" {
		t.Fatalf("batch with bad quantity: err = %v", err)
	}
	if after := *c.Snapshot().CloseForm; after != before {
		t.Fatalf("rejected batch changed the close form: %+v", after)
	}

	if err := c.UpdateCloseFields([]FieldValue{{FieldClosePrice, 1.3}, {FieldCloseQuantity, 0.1}}); err != nil {
		t.Fatalf("valid close batch: %v", err)
	}
	if f := c.Snapshot().CloseForm; f.ClosePrice != 1.3 || f.CloseQuantity != 0.1 || !f.Partial {
		t.Fatalf("close form = %+v", f)
	}
}

func TestConfirmCloseFull(t *testing.T) {
	c, store, _, set := setup()
	ctx := context.Background()
	_ = c.OpenDetails(at002())
	_ = c.RequestClose(at002())

	if _, err := c.ConfirmClose(ctx); err == nil {
		t.Fatal("ConfirmClose without reason succeeded")
	}
	if !c.Closing() {
		t.Fatal("close axis collapsed on validation error")
	}

	_ = c.UpdateCloseField(FieldCloseReason, string(domain.ReasonTakeProfit))
	_ = c.UpdateCloseField(FieldCloseComment, "target hit")
	ack, err := c.ConfirmClose(ctx)
	if err != nil || !ack.Accepted {
		t.Fatalf("ConfirmClose = %+v, %v", ack, err)
	}
	if c.Closing() {
		t.Fatal("close axis still open after accepted ack")
	}
	in := set.intents[0]
	if in.Symbol != "GBPUSD" || in.Quantity != 0.5 || in.Price != 1.2610 || in.Partial || in.Comment != "target hit" || in.IntentID == "" {
		t.Fatalf("intent = %+v", in)
	}
	if _, ok := store.Lookup("AT-002"); ok {
		t.Fatal("position still active")
	}
	if c.Phase() != PhaseIdle {
		t.Fatalf("detail axis not collapsed for removed record: %s", c.Phase())
	}
}

func TestCommitEditAfterPartialClose(t *testing.T) {
	tests := []struct {
		name  string
		edits map[string]any
		check func(t *testing.T, got domain.Position)
	}{
		{
			name:  "take profit only",
			edits: map[string]any{FieldTakeProfit: 1.26},
			check: func(t *testing.T, got domain.Position) {
				if got.TakeProfit != 1.26 {
					t.Errorf("takeProfit = %v, want 1.26", got.TakeProfit)
				}
			},
		},
		{
			name:  "quantity edited before the close",
			edits: map[string]any{FieldQuantity: 0.4, FieldStrategy: "Scalp"},
			check: func(t *testing.T, got domain.Position) {
				if got.Strategy != "Scalp" {
					t.Errorf("strategy = %q, want Scalp", got.Strategy)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, store, _, _ := setup()
			ctx := context.Background()
			_ = c.OpenDetails(at002())
			_ = c.EnterEditMode()
			for f, v := range tt.edits {
				if err := c.UpdateEditField(f, v); err != nil {
					t.Fatalf("UpdateEditField(%s): %v", f, err)
				}
			}

			_ = c.RequestClose(at002())
			_ = c.UpdateCloseField(FieldCloseQuantity, 0.3)
			_ = c.UpdateCloseField(FieldCloseReason, string(domain.ReasonManual))
			if ack, err := c.ConfirmClose(ctx); err != nil || !ack.Accepted {
				t.Fatalf("ConfirmClose = %+v, %v", ack, err)
			}
			if d := c.Snapshot().Draft; d == nil || d.Quantity != 0.2 {
				t.Fatalf("draft after partial close = %+v", d)
			}

			if _, err := c.CommitEdit(ctx); err != nil {
				t.Fatalf("CommitEdit: %v", err)
			}
			got, ok := store.Lookup("AT-002")
			if !ok {
				t.Fatal("AT-002 missing after commit")
			}
			if got.Quantity != 0.2 {
				t.Errorf("quantity = %v, want 0.2", got.Quantity)
			}
			if got.MarginUsed != 253 {
				t.Errorf("marginUsed = %v, want 253", got.MarginUsed)
			}
			tt.check(t, got)
		})
	}
}

func TestConfirmCloseLimitNeedsPrice(t *testing.T) {
	c, _, _, set := setup()
	_ = c.RequestClose(at003())
	_ = c.UpdateCloseField(FieldCloseType, "limit")
	_ = c.UpdateCloseField(FieldClosePrice, 0)
	_ = c.UpdateCloseField(FieldCloseReason, "manual")
	_, err := c.ConfirmClose(context.Background())
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Fields[FieldClosePrice] == "" {
		t.Fatalf("err = %v", err)
	}
	_ = c.UpdateCloseField(FieldClosePrice, "2050")
	_ = c.UpdateCloseField(FieldCloseQuantity, 1)
	if _, err := c.ConfirmClose(context.Background()); err != nil {
		t.Fatalf("ConfirmClose: %v", err)
	}
	if in := set.intents[0]; in.Price != 2050 || !in.Partial || in.CloseType != domain.CloseLimit {
		t.Fatalf("intent = %+v", in)
	}
}

func TestConfirmCloseRejectedStaysOpen(t *testing.T) {
	c, store, _, set := setup()
	set.reject = "market closed"
	_ = c.RequestClose(at002())
	_ = c.UpdateCloseField(FieldCloseReason, "manual")

	ack, err := c.ConfirmClose(context.Background())
	if !errors.Is(err, domain.ErrRejected) || ack.Accepted {
		t.Fatalf("ConfirmClose = %+v, %v", ack, err)
	}
	snap := c.Snapshot()
	if !snap.Closing || snap.LastError != "market closed" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if _, ok := store.Lookup("AT-002"); !ok {
		t.Fatal("rejected close removed the position")
	}

	set.reject = ""
	set.err = errors.New("timeout")
	if _, err := c.ConfirmClose(context.Background()); err == nil || !c.Closing() {
		t.Fatalf("settler error: err=%v closing=%v", err, c.Closing())
	}
}

func TestStaleReferencesCollapse(t *testing.T) {
	c, store, _, _ := setup()
	_ = c.OpenDetails(at002())
	_ = c.EnterEditMode()
	_ = c.RequestClose(at002())

	if err := store.ApplyClose(domain.CloseIntent{PositionID: "AT-002", Quantity: 0.5}, domain.ClosedPosition{}); err != nil {
		t.Fatal(err)
	}

	if err := c.UpdateEditField(FieldTakeProfit, 1.3); !errors.Is(err, domain.ErrStale) {
		t.Fatalf("UpdateEditField err = %v", err)
	}
	if c.Phase() != PhaseIdle {
		t.Fatalf("phase = %s", c.Phase())
	}
	if _, err := c.ConfirmClose(context.Background()); !errors.Is(err, domain.ErrStale) {
		t.Fatalf("ConfirmClose err = %v", err)
	}
	if c.Closing() {
		t.Fatal("close axis not collapsed")
	}
	if err := c.OpenDetails(at002()); !errors.Is(err, domain.ErrStale) || c.Phase() != PhaseIdle {
		t.Fatalf("OpenDetails on removed record err = %v phase %s", err, c.Phase())
	}
}

func TestCommitterErrorKeepsEditing(t *testing.T) {
	c, store, com, _ := setup()
	com.err = errors.New("db down")
	_ = c.OpenDetails(at002())
	_ = c.EnterEditMode()
	_ = c.UpdateEditField(FieldTakeProfit, 1.24)
	if _, err := c.CommitEdit(context.Background()); err == nil {
		t.Fatal("CommitEdit succeeded")
	}
	if c.Phase() != PhaseEditing {
		t.Fatalf("phase = %s", c.Phase())
	}
	if p, _ := store.Lookup("AT-002"); p.TakeProfit != 1.2550 {
		t.Fatal("store written despite committer failure")
	}
}

func TestCancel(t *testing.T) {
	var events []string
	store := records.New([]domain.Position{at002()}, nil, nil)
	c := New(store, nil, &fakeSettler{store: store}, Options{
		OnTransition: func(axis, event string) { events = append(events, axis+":"+event) },
	})
	_ = c.OpenDetails(at002())
	_ = c.RequestClose(at002())
	c.CancelClose()
	c.CancelDetails()
	snap := c.Snapshot()
	if snap.Phase != PhaseIdle || snap.Closing || snap.Draft != nil || snap.CloseForm != nil {
		t.Fatalf("snapshot = %+v", snap)
	}
	want := []string{"detail:open", "close:request", "close:cancel", "detail:cancel"}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("events = %v", events)
	}
}
