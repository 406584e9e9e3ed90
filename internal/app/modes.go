package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradedesk/internal/metrics"
	"github.com/alanyoungcy/tradedesk/internal/server"
	"github.com/alanyoungcy/tradedesk/internal/server/handler"
	"github.com/alanyoungcy/tradedesk/internal/server/ws"
	"github.com/alanyoungcy/tradedesk/internal/service"
	"github.com/alanyoungcy/tradedesk/internal/session"
)

// StandaloneMode serves the desk from the record source alone. Settlement
// and deletion apply to the session only, and nothing is published.
func (a *App) StandaloneMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting standalone mode")

	g, ctx := errgroup.WithContext(ctx)
	mgr := a.newSessionManager(deps)
	g.Go(func() error {
		return mgr.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, mgr, nil, nil)
	}
	return g.Wait()
}

// FullMode adds the system of record, Redis locking and fan-out, the
// WebSocket hub and S3 exports.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	mgr := a.newSessionManager(deps)
	g.Go(func() error {
		return mgr.Run(ctx)
	})

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
			Sessions:  mgr.Len,
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	var exports *service.ExportService
	if deps.BlobWriter != nil {
		exports = service.NewExportService(deps.BlobWriter, deps.SignalBus, a.cfg.S3.ExportPrefix, a.logger)
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, mgr, hub, exports)
	}
	return g.Wait()
}

// newSessionManager builds the session manager around a Desk sharing the
// wired infrastructure.
func (a *App) newSessionManager(deps *Dependencies) *session.Manager {
	desk := service.NewDesk(service.DeskConfig{
		Positions:        deps.PositionStore,
		Pending:          deps.PendingStore,
		Locks:            deps.LockManager,
		Bus:              deps.SignalBus,
		Audit:            deps.AuditStore,
		Notifier:         deps.Notifier,
		LockTTL:          a.cfg.Desk.LockTTL.Duration,
		CommissionPerLot: a.cfg.Desk.CommissionPerLot,
		ContractSize:     a.cfg.Desk.ContractSize,
		SettleTimeout:    a.cfg.Desk.SettleTimeout.Duration,
		Logger:           a.logger,
	})
	return session.NewManager(session.ManagerConfig{
		Source:       deps.Source,
		Collaborate:  desk.Collaborators,
		PageSize:     a.cfg.Records.DefaultPageSize,
		IdleTTL:      a.cfg.Records.SessionTTL.Duration,
		Logger:       a.logger,
		OnTransition: metrics.RecordTransition,
		OnCount:      metrics.SetActiveSessions,
	})
}

// startHTTPServer adds the API server to the errgroup. hub and exports are
// optional. The server is shut down gracefully when ctx is cancelled.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	mgr *session.Manager,
	hub *ws.Hub,
	exports *service.ExportService,
) {
	h := server.Handlers{
		Health:    handler.NewHealthHandler(deps.Checks, a.logger),
		Lifecycle: handler.NewLifecycleHandler(mgr, a.logger),
	}
	// A nil *ExportService must not reach the handler as a non-nil Exporter.
	if exports != nil {
		h.Sessions = handler.NewSessionHandler(mgr, exports, a.logger)
	} else {
		h.Sessions = handler.NewSessionHandler(mgr, nil, a.logger)
	}
	if deps.AuditStore != nil {
		h.Audit = handler.NewAuditHandler(deps.AuditStore, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Auth.APIKey,
		APIKeyHash:  a.cfg.Auth.APIKeyHash,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, h, server.Deps{Hub: hub, Limiter: deps.RateLimiter}, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.Bool("websocket", hub != nil),
			slog.Bool("exports", exports != nil),
		)
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
