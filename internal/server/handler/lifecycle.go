package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/lifecycle"
	"github.com/alanyoungcy/tradedesk/internal/session"
)

// LifecycleHandler drives the position detail and close dialogs of a
// session.
type LifecycleHandler struct {
	sessions Sessions
	logger   *slog.Logger
}

// NewLifecycleHandler creates a LifecycleHandler.
func NewLifecycleHandler(sessions Sessions, logger *slog.Logger) *LifecycleHandler {
	return &LifecycleHandler{sessions: sessions, logger: logger}
}

// fieldUpdate is the body of the draft and close form PATCH endpoints.
// Either one field/value pair or a map of fields may be sent. Map entries
// are applied in key order, and the whole request fails if any entry does.
type fieldUpdate struct {
	Field  string         `json:"field"`
	Value  any            `json:"value"`
	Fields map[string]any `json:"fields"`
}

func (u fieldUpdate) list() []lifecycle.FieldValue {
	out := make([]lifecycle.FieldValue, 0, len(u.Fields)+1)
	if u.Field != "" {
		out = append(out, lifecycle.FieldValue{Field: u.Field, Value: u.Value})
	}
	keys := make([]string, 0, len(u.Fields))
	for k := range u.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, lifecycle.FieldValue{Field: k, Value: u.Fields[k]})
	}
	return out
}

type positionRequest struct {
	PositionID string `json:"positionId"`
}

// step resolves the session, runs fn and writes the lifecycle snapshot.
func (h *LifecycleHandler) step(w http.ResponseWriter, r *http.Request, op string, fn func(s *session.Session) (lifecycle.Snapshot, error)) {
	s, err := h.sessions.Get(r.PathValue("session"))
	if err != nil {
		writeDomainError(w, r, h.logger, op, err)
		return
	}
	snap, err := fn(s)
	if err != nil {
		writeDomainError(w, r, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetState returns the lifecycle snapshot.
// GET /api/sessions/{session}/lifecycle
func (h *LifecycleHandler) GetState(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, "get lifecycle", func(s *session.Session) (lifecycle.Snapshot, error) {
		return s.Lifecycle(), nil
	})
}

// OpenDetails opens the detail dialog of a position.
// POST /api/sessions/{session}/lifecycle/details {"positionId": "AT-002"}
func (h *LifecycleHandler) OpenDetails(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, h.logger, "open details", err)
		return
	}
	h.step(w, r, "open details", func(s *session.Session) (lifecycle.Snapshot, error) {
		return s.OpenDetails(req.PositionID)
	})
}

// CancelDetails closes the detail dialog and drops the draft.
// DELETE /api/sessions/{session}/lifecycle/details
func (h *LifecycleHandler) CancelDetails(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, "cancel details", func(s *session.Session) (lifecycle.Snapshot, error) {
		return s.CancelDetails(), nil
	})
}

// EnterEdit switches the detail dialog to editing.
// POST /api/sessions/{session}/lifecycle/edit
func (h *LifecycleHandler) EnterEdit(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, "enter edit", func(s *session.Session) (lifecycle.Snapshot, error) {
		return s.EnterEditMode()
	})
}

// ExitEdit switches back to viewing; the draft is kept.
// DELETE /api/sessions/{session}/lifecycle/edit
func (h *LifecycleHandler) ExitEdit(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, "exit edit", func(s *session.Session) (lifecycle.Snapshot, error) {
		return s.ExitEditMode()
	})
}

// UpdateDraft changes fields of the edit draft.
// PATCH /api/sessions/{session}/lifecycle/edit {"field": "takeProfit", "value": 1.25}
func (h *LifecycleHandler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	var req fieldUpdate
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, h.logger, "update draft", err)
		return
	}
	h.step(w, r, "update draft", func(s *session.Session) (lifecycle.Snapshot, error) {
		return s.UpdateEditFields(req.list())
	})
}

// CommitEdit saves the draft.
// POST /api/sessions/{session}/lifecycle/edit/commit
func (h *LifecycleHandler) CommitEdit(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, "commit edit", func(s *session.Session) (lifecycle.Snapshot, error) {
		return s.CommitEdit(r.Context())
	})
}

// RequestClose opens the close dialog of a position.
// POST /api/sessions/{session}/lifecycle/close {"positionId": "AT-002"}
func (h *LifecycleHandler) RequestClose(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, h.logger, "request close", err)
		return
	}
	h.step(w, r, "request close", func(s *session.Session) (lifecycle.Snapshot, error) {
		return s.RequestClose(req.PositionID)
	})
}

// UpdateCloseForm changes fields of the close form.
// PATCH /api/sessions/{session}/lifecycle/close {"fields": {"closeType": "limit", "closePrice": 1.26}}
func (h *LifecycleHandler) UpdateCloseForm(w http.ResponseWriter, r *http.Request) {
	var req fieldUpdate
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, h.logger, "update close form", err)
		return
	}
	h.step(w, r, "update close form", func(s *session.Session) (lifecycle.Snapshot, error) {
		return s.UpdateCloseFields(req.list())
	})
}

// CancelClose closes the close dialog.
// DELETE /api/sessions/{session}/lifecycle/close
func (h *LifecycleHandler) CancelClose(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, "cancel close", func(s *session.Session) (lifecycle.Snapshot, error) {
		return s.CancelClose(), nil
	})
}

// confirmResponse carries the settlement acknowledgement with the state
// the confirmation left behind.
type confirmResponse struct {
	Error     string             `json:"error,omitempty"`
	Ack       *domain.CloseAck   `json:"ack,omitempty"`
	Lifecycle lifecycle.Snapshot `json:"lifecycle"`
}

// ConfirmClose submits the close form and waits for settlement. A refused
// close answers 409 with the acknowledgement.
// POST /api/sessions/{session}/lifecycle/close/confirm
func (h *LifecycleHandler) ConfirmClose(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(r.PathValue("session"))
	if err != nil {
		writeDomainError(w, r, h.logger, "confirm close", err)
		return
	}
	ack, snap, err := s.ConfirmClose(r.Context())
	resp := confirmResponse{Lifecycle: snap}
	if ack.IntentID != "" {
		resp.Ack = &ack
	}
	if err != nil {
		var verr *lifecycle.ValidationError
		if statusFor(err) >= http.StatusInternalServerError || errors.As(err, &verr) {
			writeDomainError(w, r, h.logger, "confirm close", err)
			return
		}
		resp.Error = err.Error()
		writeJSON(w, statusFor(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
