// Package server exposes the operational HTTP API of the resolver: health,
// resolution triggers, the attempt audit trail, evidence retrieval, and the
// Prometheus scrape endpoint.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/veritaslabs/oraclebot/internal/server/handler"
	"github.com/veritaslabs/oraclebot/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	// RateLimitRPS caps requests per second per client IP; 0 disables it.
	RateLimitRPS float64
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health      *handler.HealthHandler
	Resolutions *handler.ResolutionHandler
	Evidence    *handler.EvidenceHandler
	// Metrics serves the Prometheus scrape endpoint; nil disables it.
	Metrics http.Handler
}

// Server is the headless HTTP API server of the resolver.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (rate limit, logging, CORS, auth) applied.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("POST /api/resolutions", handlers.Resolutions.Trigger)
	mux.HandleFunc("GET /api/resolutions/{marketID}", handlers.Resolutions.History)
	mux.HandleFunc("GET /api/resolutions/{marketID}/latest", handlers.Resolutions.Latest)

	mux.HandleFunc("GET /api/evidence/{cid}", handlers.Evidence.Get)
	mux.HandleFunc("GET /api/evidence/{cid}/verify", handlers.Evidence.Verify)

	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	if cfg.RateLimitRPS > 0 {
		h = middleware.RateLimit(cfg.RateLimitRPS)(h)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
