package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/veritaslabs/oraclebot/internal/server"
	"github.com/veritaslabs/oraclebot/internal/server/handler"
)

// ResolveMode runs one resolution attempt for the given market and exits.
func (a *App) ResolveMode(ctx context.Context, deps *Dependencies, marketID string) error {
	if marketID == "" {
		return fmt.Errorf("app: resolve mode requires a market id (-market flag)")
	}
	a.logger.InfoContext(ctx, "starting resolve mode", slog.String("market_id", marketID))

	res, err := deps.Engine.Resolve(ctx, marketID)
	if err != nil {
		return fmt.Errorf("app: resolve %s: %w", marketID, err)
	}

	a.logger.InfoContext(ctx, "resolution complete",
		slog.String("market_id", res.MarketID),
		slog.Bool("outcome", res.Outcome),
		slog.Int("confidence", res.Confidence),
		slog.String("evidence_cid", res.EvidenceCID),
		slog.String("tx_hash", res.TxHash),
		slog.Duration("duration", res.Duration),
	)
	return nil
}

// WorkerMode consumes the resolution job stream until the context is
// cancelled.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting worker mode",
		slog.Int("workers", a.cfg.Engine.Workers))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.Engine.RunWorkers(ctx, deps.Queue)
	})
	a.startArchiveLoop(ctx, g, deps)
	return g.Wait()
}

// ServerMode runs the HTTP API only; resolutions enqueued through it are left
// for worker processes.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the HTTP API and the worker pool in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Engine.RunWorkers(ctx, deps.Queue)
	})
	a.startArchiveLoop(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return g.Wait()
}

// startHTTPServer wires the handlers into a server.Server and runs it on the
// errgroup, shutting it down when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	srv := server.NewServer(server.Config{
		Port:         a.cfg.Server.Port,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		APIKey:       a.cfg.Server.APIKey,
		RateLimitRPS: a.cfg.Server.RateLimitRPS,
	}, server.Handlers{
		Health:      handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Resolutions: handler.NewResolutionHandler(deps.Queue, deps.Attempts, a.logger),
		Evidence:    handler.NewEvidenceHandler(deps.Evidence, a.logger),
		Metrics:     promhttp.HandlerFor(deps.Metrics.Registry(), promhttp.HandlerOpts{}),
	}, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// startArchiveLoop periodically moves attempt rows older than the retention
// window out of Postgres into S3. A no-op when archiving is disabled.
func (a *App) startArchiveLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	retention := time.Duration(a.cfg.Engine.ArchiveRetentionDays) * 24 * time.Hour

	g.Go(func() error {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				cutoff := time.Now().Add(-retention)
				n, err := deps.Archiver.ArchiveAttempts(ctx, cutoff)
				if err != nil {
					a.logger.ErrorContext(ctx, "attempt archive failed",
						slog.String("error", err.Error()))
					continue
				}
				if n > 0 {
					a.logger.InfoContext(ctx, "attempts archived",
						slog.Int64("count", n),
						slog.Time("cutoff", cutoff))
				}
			}
		}
	})
}
