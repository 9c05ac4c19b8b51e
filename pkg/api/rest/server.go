package rest

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/annexlabs/annex/pkg/api/rest/middleware"
	"github.com/annexlabs/annex/pkg/config"
	"github.com/annexlabs/annex/pkg/observability"
	"github.com/annexlabs/annex/pkg/search"
)

// Server exposes the index over HTTP.
type Server struct {
	config     *config.Config
	handler    *Handler
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *observability.Logger
}

// NewServer wires the handler, middleware chain and routes.
func NewServer(cfg *config.Config, cached *search.CachedIndex, metrics *observability.Metrics, logger *observability.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	handler := NewHandler(cached, metrics, logger, cfg.Index.SnapshotPath)

	s := &Server{
		config:  cfg,
		handler: handler,
		mux:     http.NewServeMux(),
		logger:  logger,
	}

	s.setupRoutes()

	chain := s.buildMiddleware(s.mux)

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      chain,
		ReadTimeout:  cfg.Server.RequestTimeout,
		WriteTimeout: cfg.Server.RequestTimeout,
	}

	return s, nil
}

// setupRoutes registers all endpoints.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /v1/vectors", s.handler.HandleInsert)
	s.mux.HandleFunc("POST /v1/vectors/batch", s.handler.HandleBatchInsert)
	s.mux.HandleFunc("POST /v1/search", s.handler.HandleSearch)
	s.mux.HandleFunc("POST /v1/snapshot", s.handler.HandleSnapshot)
	s.mux.HandleFunc("GET /v1/stats", s.handler.HandleStats)
	s.mux.HandleFunc("GET /healthz", s.handler.HandleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// buildMiddleware assembles the chain: request id, then auth, then rate
// limiting (so authenticated clients are limited by token subject, not
// address).
func (s *Server) buildMiddleware(next http.Handler) http.Handler {
	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		Enabled:      s.config.RateLimit.Enabled,
		SearchPerSec: s.config.RateLimit.SearchPerSec,
		MutatePerSec: s.config.RateLimit.MutatePerSec,
		Burst:        s.config.RateLimit.Burst,
	})

	handler := middleware.RateLimit(limiter)(next)

	handler = middleware.Auth(middleware.AuthConfig{
		Enabled:     s.config.Auth.Enabled,
		JWTSecret:   s.config.Auth.JWTSecret,
		PublicPaths: s.config.Auth.PublicPaths,
	})(handler)

	handler = middleware.RequestID(handler)

	return handler
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	s.logger.Info("REST server listening", map[string]interface{}{
		"addr": s.config.Server.Address(),
	})

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", map[string]interface{}{"error": err.Error()})
		}
	}()

	return nil
}

// Stop gracefully shuts the server down within the configured timeout.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down REST server")
	return s.httpServer.Shutdown(ctx)
}

// HTTPHandler exposes the full middleware chain, mainly for tests.
func (s *Server) HTTPHandler() http.Handler {
	return s.httpServer.Handler
}
