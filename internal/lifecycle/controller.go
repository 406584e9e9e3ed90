// Package lifecycle drives the detail/edit and close workflows of a single
// operator over the active positions of a records.Store.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// Phase is the state of the detail axis.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseViewing Phase = "viewing"
	PhaseEditing Phase = "editing"
)

// ErrNotEditing is returned when a draft update arrives outside edit mode.
var ErrNotEditing = errors.New("lifecycle: not in edit mode")

// ErrNotClosing is returned when a close form update arrives with no close
// dialog open.
var ErrNotClosing = errors.New("lifecycle: no close in progress")

// Store is the slice of records.Store the controller depends on.
type Store interface {
	Lookup(id string) (domain.Position, bool)
	Replace(p domain.Position) error
}

// Options configures optional controller behaviour.
type Options struct {
	Logger *slog.Logger
	Now    func() time.Time
	// OnTransition, when set, is called after every state change with the
	// axis ("detail" or "close") and the event name.
	OnTransition func(axis, event string)
}

// Controller is the position lifecycle state machine. It holds two
// orthogonal axes: detail (idle, viewing, editing) and close (open or not).
// A Controller is not safe for concurrent use; callers serialize access.
type Controller struct {
	store     Store
	committer domain.EditCommitter
	settler   domain.CloseSettler
	logger    *slog.Logger
	now       func() time.Time
	observe   func(axis, event string)

	phase    Phase
	selected *domain.Position
	draft    *EditForm

	closeTarget *domain.Position
	closeForm   *CloseForm
	lastError   string
}

// New creates a Controller in the idle state on both axes.
func New(store Store, committer domain.EditCommitter, settler domain.CloseSettler, opts Options) *Controller {
	c := &Controller{
		store:     store,
		committer: committer,
		settler:   settler,
		logger:    opts.Logger,
		now:       opts.Now,
		observe:   opts.OnTransition,
		phase:     PhaseIdle,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With(slog.String("component", "lifecycle"))
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Phase returns the current detail phase.
func (c *Controller) Phase() Phase { return c.phase }

// Closing reports whether a close dialog is open.
func (c *Controller) Closing() bool { return c.closeTarget != nil }

// OpenDetails selects p for viewing, replacing any prior selection, and
// seeds a fresh edit draft from the live record.
func (c *Controller) OpenDetails(p domain.Position) error {
	live, ok := c.store.Lookup(p.ID)
	if !ok {
		c.resetDetail("stale")
		return fmt.Errorf("lifecycle: open details %s: %w", p.ID, domain.ErrStale)
	}
	c.selected = &live
	c.draft = seedEditForm(live)
	c.phase = PhaseViewing
	c.emit("detail", "open")
	return nil
}

// EnterEditMode switches from viewing to editing. The draft is kept as is,
// so unsaved edits from an earlier edit session reappear.
func (c *Controller) EnterEditMode() error {
	if c.selected == nil {
		return domain.ErrNoSelection
	}
	if err := c.revalidateDetail(); err != nil {
		return err
	}
	if c.phase == PhaseEditing {
		return nil
	}
	c.phase = PhaseEditing
	c.emit("detail", "edit")
	return nil
}

// ExitEditMode returns from editing to viewing without discarding the
// draft.
func (c *Controller) ExitEditMode() error {
	if c.selected == nil {
		return domain.ErrNoSelection
	}
	if err := c.revalidateDetail(); err != nil {
		return err
	}
	if c.phase != PhaseEditing {
		return nil
	}
	c.phase = PhaseViewing
	c.emit("detail", "view")
	return nil
}

// UpdateEditField changes one field of the draft. Numeric input that does
// not parse is stored as 0 and flagged; it is never an error. Unknown
// fields return domain.ErrUnknownField.
func (c *Controller) UpdateEditField(field string, value any) error {
	if c.selected == nil {
		return domain.ErrNoSelection
	}
	if err := c.revalidateDetail(); err != nil {
		return err
	}
	if c.phase != PhaseEditing {
		return ErrNotEditing
	}
	return c.draft.set(field, value)
}

// UpdateEditFields applies a batch of draft updates in order. The batch is
// all or nothing: on the first error the draft is left as it was before
// the call.
func (c *Controller) UpdateEditFields(updates []FieldValue) error {
	if c.selected == nil {
		return domain.ErrNoSelection
	}
	if err := c.revalidateDetail(); err != nil {
		return err
	}
	if c.phase != PhaseEditing {
		return ErrNotEditing
	}
	next := c.draft.clone()
	for _, u := range updates {
		if err := next.set(u.Field, u.Value); err != nil {
			return err
		}
	}
	c.draft = next
	return nil
}

// CommitEdit merges the draft onto the selected position, hands the result
// to the EditCommitter and writes it back into the store. With nothing
// selected it does nothing and returns (nil, nil). A flagged draft returns
// a *ValidationError and leaves the state untouched.
func (c *Controller) CommitEdit(ctx context.Context) (*domain.Position, error) {
	if c.selected == nil {
		c.phase = PhaseIdle
		return nil, nil
	}
	if err := c.revalidateDetail(); err != nil {
		return nil, err
	}
	if !c.draft.Valid() {
		fields := make(map[string]string, len(c.draft.Invalid))
		for k, v := range c.draft.Invalid {
			fields[k] = v
		}
		return nil, &ValidationError{Fields: fields}
	}

	merged := c.draft.mergeInto(*c.selected)
	if c.committer != nil {
		if err := c.committer.CommitEdit(ctx, merged); err != nil {
			c.logger.Warn("commit edit failed",
				slog.String("position_id", merged.ID),
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("lifecycle: commit edit %s: %w", merged.ID, err)
		}
	}
	if err := c.store.Replace(merged); err != nil {
		c.resetDetail("stale")
		return nil, fmt.Errorf("lifecycle: commit edit %s: %w", merged.ID, domain.ErrStale)
	}

	c.logger.Info("position edited", slog.String("position_id", merged.ID))
	c.resetDetail("commit")
	return &merged, nil
}

// CancelDetails closes the detail dialog and drops the draft.
func (c *Controller) CancelDetails() {
	c.resetDetail("cancel")
}

// RequestClose opens the close dialog for p. The detail axis is left
// alone, including any edit draft.
func (c *Controller) RequestClose(p domain.Position) error {
	live, ok := c.store.Lookup(p.ID)
	if !ok {
		c.resetClose("stale")
		return fmt.Errorf("lifecycle: request close %s: %w", p.ID, domain.ErrStale)
	}
	c.closeTarget = &live
	c.closeForm = seedCloseForm(live)
	c.lastError = ""
	c.emit("close", "request")
	return nil
}

// UpdateCloseField changes one field of the close form. Rejected input
// returns a *ValidationError and leaves the form unchanged.
func (c *Controller) UpdateCloseField(field string, value any) error {
	if c.closeTarget == nil {
		return ErrNotClosing
	}
	if err := c.revalidateClose(); err != nil {
		return err
	}

	f := c.closeForm
	switch field {
	case FieldCloseType:
		s, _ := value.(string)
		t := domain.CloseType(s)
		if !t.Valid() {
			return newValidationError(field, "must be market, limit or stop")
		}
		f.CloseType = t
	case FieldClosePrice:
		n, ok := toFloat(value)
		if !ok || n < 0 {
			return newValidationError(field, "must be a non-negative number")
		}
		f.ClosePrice = n
	case FieldCloseQuantity:
		n, ok := toFloat(value)
		full := c.closeTarget.Quantity
		if !ok || n <= 0 || n > full {
			return newValidationError(field, fmt.Sprintf("must be greater than 0 and at most %g", full))
		}
		f.CloseQuantity = n
		f.Partial = n < full
	case FieldCloseReason:
		s, _ := value.(string)
		r := domain.CloseReason(s)
		if !r.Valid() {
			return newValidationError(field, "unknown close reason")
		}
		f.Reason = r
	case FieldCloseComment:
		s, ok := value.(string)
		if !ok {
			return newValidationError(field, "must be text")
		}
		f.Comment = s
	default:
		return fmt.Errorf("lifecycle: close field %q: %w", field, domain.ErrUnknownField)
	}
	return nil
}

// UpdateCloseFields applies a batch of close form updates in order. A
// rejected entry returns its error and leaves the form as it was before
// the call.
func (c *Controller) UpdateCloseFields(updates []FieldValue) error {
	if c.closeTarget == nil {
		return ErrNotClosing
	}
	saved := *c.closeForm
	for _, u := range updates {
		if err := c.UpdateCloseField(u.Field, u.Value); err != nil {
			if c.closeForm != nil {
				*c.closeForm = saved
			}
			return err
		}
	}
	return nil
}

// ConfirmClose validates the close form, hands a CloseIntent to the
// settler and waits for its acknowledgement. The dialog closes only on an
// accepted ack; a rejection or error keeps it open with LastError set.
// With no close in progress it does nothing and returns a zero ack.
func (c *Controller) ConfirmClose(ctx context.Context) (domain.CloseAck, error) {
	if c.closeTarget == nil {
		return domain.CloseAck{}, nil
	}
	if err := c.revalidateClose(); err != nil {
		return domain.CloseAck{}, err
	}
	if err := c.validateCloseForm(); err != nil {
		return domain.CloseAck{}, err
	}

	intent := c.buildIntent()
	if c.settler == nil {
		c.lastError = "no settlement configured"
		return domain.CloseAck{}, fmt.Errorf("lifecycle: confirm close %s: no settler: %w", intent.PositionID, domain.ErrRejected)
	}
	ack, err := c.settler.Settle(ctx, intent)
	if err != nil {
		c.lastError = err.Error()
		c.logger.Warn("close settlement failed",
			slog.String("position_id", intent.PositionID),
			slog.String("intent_id", intent.IntentID),
			slog.String("error", err.Error()),
		)
		return domain.CloseAck{}, fmt.Errorf("lifecycle: confirm close %s: %w", intent.PositionID, err)
	}
	if !ack.Accepted {
		c.lastError = ack.Message
		c.emit("close", "rejected")
		return ack, fmt.Errorf("lifecycle: confirm close %s: %s: %w", intent.PositionID, ack.Message, domain.ErrRejected)
	}

	c.logger.Info("position close settled",
		slog.String("position_id", intent.PositionID),
		slog.String("intent_id", intent.IntentID),
		slog.Bool("partial", intent.Partial),
	)
	c.resetClose("confirm")
	// A full close removes the record under the detail dialog; a partial
	// one changes it, so the draft is rebased onto the new quantity.
	if c.selected != nil && c.selected.ID == intent.PositionID {
		if err := c.revalidateDetail(); err == nil {
			c.draft.rebase(*c.selected)
		}
	}
	return ack, nil
}

// CancelClose closes the close dialog and drops the form.
func (c *Controller) CancelClose() {
	c.resetClose("cancel")
}

func (c *Controller) validateCloseForm() error {
	f := c.closeForm
	verr := &ValidationError{Fields: map[string]string{}}
	if f.CloseType != domain.CloseMarket && f.ClosePrice <= 0 {
		verr.Fields[FieldClosePrice] = "required for limit and stop closes"
	}
	if f.CloseQuantity <= 0 || f.CloseQuantity > c.closeTarget.Quantity {
		verr.Fields[FieldCloseQuantity] = fmt.Sprintf("must be greater than 0 and at most %g", c.closeTarget.Quantity)
	}
	if !f.Reason.Valid() {
		verr.Fields[FieldCloseReason] = "required"
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

func (c *Controller) buildIntent() domain.CloseIntent {
	p, f := c.closeTarget, c.closeForm
	price := f.ClosePrice
	if f.CloseType == domain.CloseMarket {
		price = p.CurrentPrice
	}
	return domain.CloseIntent{
		IntentID:    uuid.NewString(),
		PositionID:  p.ID,
		AccountID:   p.AccountID,
		Symbol:      p.Symbol,
		Direction:   p.Direction,
		Quantity:    f.CloseQuantity,
		Price:       price,
		CloseType:   f.CloseType,
		Reason:      f.Reason,
		Comment:     f.Comment,
		Partial:     f.CloseQuantity < p.Quantity,
		RequestedAt: c.now().UTC(),
	}
}

// revalidateDetail refreshes the selection from the store, collapsing the
// detail axis when the record is gone.
func (c *Controller) revalidateDetail() error {
	live, ok := c.store.Lookup(c.selected.ID)
	if !ok {
		id := c.selected.ID
		c.resetDetail("stale")
		return fmt.Errorf("lifecycle: position %s: %w", id, domain.ErrStale)
	}
	c.selected = &live
	return nil
}

func (c *Controller) revalidateClose() error {
	live, ok := c.store.Lookup(c.closeTarget.ID)
	if !ok {
		id := c.closeTarget.ID
		c.resetClose("stale")
		return fmt.Errorf("lifecycle: position %s: %w", id, domain.ErrStale)
	}
	c.closeTarget = &live
	return nil
}

func (c *Controller) resetDetail(event string) {
	c.phase = PhaseIdle
	c.selected = nil
	c.draft = nil
	c.emit("detail", event)
}

func (c *Controller) resetClose(event string) {
	c.closeTarget = nil
	c.closeForm = nil
	c.lastError = ""
	c.emit("close", event)
}

func (c *Controller) emit(axis, event string) {
	if c.observe != nil {
		c.observe(axis, event)
	}
}

// Snapshot is a read-only copy of the controller state for rendering.
type Snapshot struct {
	Phase       Phase            `json:"phase"`
	Selected    *domain.Position `json:"selected,omitempty"`
	Draft       *EditForm        `json:"draft,omitempty"`
	Closing     bool             `json:"closing"`
	CloseTarget *domain.Position `json:"closeTarget,omitempty"`
	CloseForm   *CloseForm       `json:"closeForm,omitempty"`
	LastError   string           `json:"lastError,omitempty"`
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	s := Snapshot{
		Phase:     c.phase,
		Draft:     c.draft.clone(),
		Closing:   c.closeTarget != nil,
		LastError: c.lastError,
	}
	if c.selected != nil {
		p := c.selected.Clone()
		s.Selected = &p
	}
	if c.closeTarget != nil {
		p := c.closeTarget.Clone()
		s.CloseTarget = &p
	}
	if c.closeForm != nil {
		f := *c.closeForm
		s.CloseForm = &f
	}
	return s
}
