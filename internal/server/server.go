// Package server exposes the desk over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/metrics"
	"github.com/alanyoungcy/tradedesk/internal/server/handler"
	"github.com/alanyoungcy/tradedesk/internal/server/middleware"
	"github.com/alanyoungcy/tradedesk/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKey and APIKeyHash configure operator authentication; both empty
	// disables it.
	APIKey     string
	APIKeyHash string
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers. Audit may be
// nil when no audit store is wired.
type Handlers struct {
	Health    *handler.HealthHandler
	Sessions  *handler.SessionHandler
	Lifecycle *handler.LifecycleHandler
	Audit     *handler.AuditHandler
}

// Deps holds optional infrastructure used by the middleware chain.
type Deps struct {
	Hub     *ws.Hub
	Limiter domain.RateLimiter
}

// Server is the desk's HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware
// chain: CORS, logging, rate limiting, auth.
func NewServer(cfg Config, h Handlers, deps Deps, logger *slog.Logger) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewHandler(cfg, h, deps, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger.With(slog.String("component", "server"))}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, h Handlers, deps Deps, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	mux.HandleFunc("GET /api/ready", h.Health.Ready)
	mux.Handle("GET /metrics", metrics.Handler())

	// Sessions.
	mux.HandleFunc("POST /api/sessions", h.Sessions.CreateSession)
	mux.HandleFunc("GET /api/sessions/{session}", h.Sessions.GetSession)
	mux.HandleFunc("DELETE /api/sessions/{session}", h.Sessions.DeleteSession)
	mux.HandleFunc("GET /api/sessions/{session}/accounts/{account}", h.Sessions.GetAccount)

	// Tables.
	const table = "/api/sessions/{session}/tables/{table}"
	mux.HandleFunc("GET "+table, h.Sessions.GetTable)
	mux.HandleFunc("PUT "+table+"/query", h.Sessions.SetQuery)
	mux.HandleFunc("PUT "+table+"/filters", h.Sessions.SetFilters)
	mux.HandleFunc("POST "+table+"/page", h.Sessions.MovePage)
	mux.HandleFunc("PUT "+table+"/page-size", h.Sessions.SetPageSize)
	mux.HandleFunc("PUT "+table+"/columns", h.Sessions.SetAllColumns)
	mux.HandleFunc("POST "+table+"/columns/{column}/toggle", h.Sessions.ToggleColumn)
	mux.HandleFunc("POST "+table+"/rows/{id}/events", h.Sessions.RowEvent)
	mux.HandleFunc("DELETE "+table+"/rows/{id}", h.Sessions.DeleteRow)
	mux.HandleFunc("GET "+table+"/export.csv", h.Sessions.DownloadCSV)
	mux.HandleFunc("POST "+table+"/exports", h.Sessions.UploadExport)

	// Position lifecycle.
	const lc = "/api/sessions/{session}/lifecycle"
	mux.HandleFunc("GET "+lc, h.Lifecycle.GetState)
	mux.HandleFunc("POST "+lc+"/details", h.Lifecycle.OpenDetails)
	mux.HandleFunc("DELETE "+lc+"/details", h.Lifecycle.CancelDetails)
	mux.HandleFunc("POST "+lc+"/edit", h.Lifecycle.EnterEdit)
	mux.HandleFunc("DELETE "+lc+"/edit", h.Lifecycle.ExitEdit)
	mux.HandleFunc("PATCH "+lc+"/edit", h.Lifecycle.UpdateDraft)
	mux.HandleFunc("POST "+lc+"/edit/commit", h.Lifecycle.CommitEdit)
	mux.HandleFunc("POST "+lc+"/close", h.Lifecycle.RequestClose)
	mux.HandleFunc("PATCH "+lc+"/close", h.Lifecycle.UpdateCloseForm)
	mux.HandleFunc("DELETE "+lc+"/close", h.Lifecycle.CancelClose)
	mux.HandleFunc("POST "+lc+"/close/confirm", h.Lifecycle.ConfirmClose)

	if h.Audit != nil {
		mux.HandleFunc("GET /api/audit", h.Audit.ListAudit)
	}
	if deps.Hub != nil {
		mux.HandleFunc("GET /ws", deps.Hub.HandleWS)
	}

	var out http.Handler = mux
	out = middleware.Auth(cfg.APIKey, cfg.APIKeyHash, "/api/health", "/api/ready", "/metrics")(out)
	if deps.Limiter != nil && cfg.RateLimit > 0 {
		out = middleware.RateLimit(deps.Limiter, cfg.RateLimit, cfg.RateWindow, logger)(out)
	}
	out = middleware.Logging(logger)(out)
	out = middleware.CORS(cfg.CORSOrigins)(out)
	return out
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
