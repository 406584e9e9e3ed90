package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// AuditHandler lists the audit log.
type AuditHandler struct {
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(audit domain.AuditStore, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logger}
}

type listAuditResponse struct {
	Entries []domain.AuditEntry `json:"entries"`
}

// ListAudit returns audit entries, newest first.
// GET /api/audit?event=position_closed&limit=50&offset=0
func (h *AuditHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, "list audit", err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, listAuditResponse{Entries: entries})
}
