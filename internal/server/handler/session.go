package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/tradedesk/internal/filter"
	"github.com/alanyoungcy/tradedesk/internal/lifecycle"
	"github.com/alanyoungcy/tradedesk/internal/records"
	"github.com/alanyoungcy/tradedesk/internal/service"
	"github.com/alanyoungcy/tradedesk/internal/session"
	"github.com/alanyoungcy/tradedesk/internal/view"
)

// Sessions is the session registry the handlers need.
type Sessions interface {
	Create(ctx context.Context, userID string) (*session.Session, error)
	Get(id string) (*session.Session, error)
	Remove(id string) bool
}

// Exporter uploads a table export to object storage.
type Exporter interface {
	Export(ctx context.Context, src service.TableSource, table string) (service.ExportResult, error)
}

// SessionHandler serves session, table and row endpoints.
type SessionHandler struct {
	sessions Sessions
	exports  Exporter
	logger   *slog.Logger
}

// NewSessionHandler creates a SessionHandler. exports may be nil, in which
// case uploads answer 503 and only CSV downloads are available.
func NewSessionHandler(sessions Sessions, exports Exporter, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, exports: exports, logger: logger}
}

// sessionResponse describes one session.
type sessionResponse struct {
	ID        string             `json:"id"`
	UserID    string             `json:"userId"`
	Stats     records.Stats      `json:"stats"`
	Lifecycle lifecycle.Snapshot `json:"lifecycle"`
}

func describe(s *session.Session) sessionResponse {
	return sessionResponse{ID: s.ID, UserID: s.UserID, Stats: s.Stats(), Lifecycle: s.Lifecycle()}
}

// session resolves the {session} path parameter or writes an error.
func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(r.PathValue("session"))
	if err != nil {
		writeDomainError(w, r, h.logger, "get session", err)
		return nil, false
	}
	return s, true
}

// CreateSession opens a session on a fresh copy of the records.
// POST /api/sessions {"userId": "..."}
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, h.logger, "create session", err)
		return
	}
	if req.UserID == "" {
		req.UserID = r.Header.Get("X-User-ID")
	}
	if req.UserID == "" {
		req.UserID = "operator"
	}

	s, err := h.sessions.Create(r.Context(), req.UserID)
	if err != nil {
		writeDomainError(w, r, h.logger, "create session", err)
		return
	}
	writeJSON(w, http.StatusCreated, describe(s))
}

// GetSession returns the header figures and lifecycle state.
// GET /api/sessions/{session}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.session(w, r); ok {
		writeJSON(w, http.StatusOK, describe(s))
	}
}

// DeleteSession ends a session.
// DELETE /api/sessions/{session}
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.Remove(r.PathValue("session")) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// tableOp runs fn against the session and table named in the path and
// writes the resulting table.
func (h *SessionHandler) tableOp(w http.ResponseWriter, r *http.Request, op string, fn func(s *session.Session, table string) (view.Table, error)) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	t, err := fn(s, r.PathValue("table"))
	if err != nil {
		writeDomainError(w, r, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// GetTable returns the current page of a table.
// GET /api/sessions/{session}/tables/{table}
func (h *SessionHandler) GetTable(w http.ResponseWriter, r *http.Request) {
	h.tableOp(w, r, "get table", func(s *session.Session, table string) (view.Table, error) {
		return s.Table(table)
	})
}

// SetQuery changes the free-text query of a table.
// PUT /api/sessions/{session}/tables/{table}/query {"query": "eur"}
func (h *SessionHandler) SetQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, h.logger, "set query", err)
		return
	}
	h.tableOp(w, r, "set query", func(s *session.Session, table string) (view.Table, error) {
		return s.SetQuery(table, req.Query)
	})
}

// SetFilters replaces the discrete filter selections of a table.
// PUT /api/sessions/{session}/tables/{table}/filters {"risk": "High", "direction": "all"}
func (h *SessionHandler) SetFilters(w http.ResponseWriter, r *http.Request) {
	var sel map[string]string
	if err := decodeJSON(r, &sel); err != nil {
		writeDomainError(w, r, h.logger, "set filters", err)
		return
	}
	h.tableOp(w, r, "set filters", func(s *session.Session, table string) (view.Table, error) {
		return s.SetSelections(table, filter.Selections(sel))
	})
}

// MovePage moves through the pages of a table.
// POST /api/sessions/{session}/tables/{table}/page {"move": "next"|"previous"|"goto", "page": 3}
func (h *SessionHandler) MovePage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Move string `json:"move"`
		Page int    `json:"page"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, h.logger, "move page", err)
		return
	}
	h.tableOp(w, r, "move page", func(s *session.Session, table string) (view.Table, error) {
		return s.MovePage(table, session.PageMove(strings.ToLower(req.Move)), req.Page)
	})
}

// SetPageSize changes the page size of a table.
// PUT /api/sessions/{session}/tables/{table}/page-size {"size": 25}
func (h *SessionHandler) SetPageSize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Size int `json:"size"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, h.logger, "set page size", err)
		return
	}
	h.tableOp(w, r, "set page size", func(s *session.Session, table string) (view.Table, error) {
		return s.SetPageSize(table, req.Size)
	})
}

// ToggleColumn flips the visibility of one column.
// POST /api/sessions/{session}/tables/{table}/columns/{column}/toggle
func (h *SessionHandler) ToggleColumn(w http.ResponseWriter, r *http.Request) {
	h.tableOp(w, r, "toggle column", func(s *session.Session, table string) (view.Table, error) {
		return s.ToggleColumn(table, r.PathValue("column"))
	})
}

// SetAllColumns shows or hides every column.
// PUT /api/sessions/{session}/tables/{table}/columns {"visible": true}
func (h *SessionHandler) SetAllColumns(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Visible bool `json:"visible"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, h.logger, "set columns", err)
		return
	}
	h.tableOp(w, r, "set columns", func(s *session.Session, table string) (view.Table, error) {
		return s.SetAllColumns(table, req.Visible)
	})
}

// eventResponse carries the dispatch outcome and the lifecycle state it
// left behind.
type eventResponse struct {
	Outcome   session.Outcome    `json:"outcome"`
	Lifecycle lifecycle.Snapshot `json:"lifecycle"`
}

// RowEvent routes a click on a row or one of its nested controls.
// POST /api/sessions/{session}/tables/{table}/rows/{id}/events {"target": "row"|"account"|"close"|"delete"}
func (h *SessionHandler) RowEvent(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Target string `json:"target"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, h.logger, "row event", err)
		return
	}
	if req.Target == "" {
		req.Target = string(session.TargetRow)
	}

	ev := &session.Event{
		Table:    r.PathValue("table"),
		RecordID: r.PathValue("id"),
		Target:   session.Target(strings.ToLower(req.Target)),
	}
	out, err := s.Dispatch(r.Context(), ev)
	if err != nil {
		writeDomainError(w, r, h.logger, "row event", err)
		return
	}
	writeJSON(w, http.StatusOK, eventResponse{Outcome: out, Lifecycle: s.Lifecycle()})
}

// DeleteRow deletes one record.
// DELETE /api/sessions/{session}/tables/{table}/rows/{id}
func (h *SessionHandler) DeleteRow(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Delete(r.Context(), r.PathValue("table"), r.PathValue("id")); err != nil {
		writeDomainError(w, r, h.logger, "delete row", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAccount returns the read-only summary of one account.
// GET /api/sessions/{session}/accounts/{account}
func (h *SessionHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	sum, err := s.Account(r.PathValue("account"))
	if err != nil {
		writeDomainError(w, r, h.logger, "get account", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// DownloadCSV streams every filtered row of a table as CSV.
// GET /api/sessions/{session}/tables/{table}/export.csv
func (h *SessionHandler) DownloadCSV(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	table := r.PathValue("table")
	t, err := s.Export(table)
	if err != nil {
		writeDomainError(w, r, h.logger, "export", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, table))
	if err := view.WriteCSV(w, t); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: write csv failed",
			slog.String("table", table),
			slog.String("error", err.Error()),
		)
	}
}

// UploadExport stores the filtered rows of a table in object storage.
// POST /api/sessions/{session}/tables/{table}/exports
func (h *SessionHandler) UploadExport(w http.ResponseWriter, r *http.Request) {
	if h.exports == nil {
		writeError(w, http.StatusServiceUnavailable, "object storage is not configured")
		return
	}
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	res, err := h.exports.Export(r.Context(), s, r.PathValue("table"))
	if err != nil {
		writeDomainError(w, r, h.logger, "upload export", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

var _ service.TableSource = (*session.Session)(nil)
