package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/arcafs/arca/internal/logger"
	"github.com/arcafs/arca/pkg/auth"
	"github.com/arcafs/arca/pkg/engine"
	"github.com/arcafs/arca/pkg/metrics"
)

// Options aggregates the collaborators the server serves. Engine is
// required; the rest degrades gracefully when absent: nil Users and
// JWTService drop the /auth routes and treat every request as anonymous,
// a nil HTTPMetrics skips request instrumentation, and a nil
// MetricsHandler leaves /metrics unmounted (the scrape endpoint runs on
// its own listener then).
type Options struct {
	// Engine is the object store the API fronts.
	Engine *engine.Engine

	// Users and JWTService drive the /auth login and refresh endpoints.
	Users      *auth.Users
	JWTService *auth.JWTService

	// HideDenied masks authorization denials as 404.
	HideDenied bool

	// Restricted marks object responses as non-cacheable by shared
	// caches.
	Restricted bool

	// Version is reported by the health endpoints.
	Version string

	// HTTPMetrics receives per-request measurements.
	HTTPMetrics metrics.HTTPMetrics

	// MetricsHandler, when set, is mounted at GET /metrics.
	MetricsHandler http.Handler
}

// Server provides the HTTP server for the REST API.
//
// The server exposes the bucket and object endpoints under the configured
// base path, plus health probes, token endpoints and optionally the
// Prometheus scrape endpoint.
//
// The server supports graceful shutdown with configurable timeout.
type Server struct {
	server       *http.Server
	config       Config
	shutdownOnce sync.Once
}

// NewServer creates a new API HTTP server.
//
// The server is created in a stopped state. Call Start() to begin serving
// requests.
//
// Defaults are applied here to ensure the server works correctly even when
// created directly (e.g., in tests). This is idempotent with the defaults
// applied during config loading.
func NewServer(config Config, opts Options) *Server {
	config.applyDefaults()

	server := &http.Server{
		Addr:              config.Addr(),
		Handler:           NewRouter(config, opts),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		ReadTimeout:       config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
	}

	return &Server{
		server: server,
		config: config,
	}
}

// Start starts the API HTTP server and blocks until the context is
// cancelled or an error occurs.
//
// When the context is cancelled, Start initiates graceful shutdown and
// returns.
//
// Returns:
//   - nil on graceful shutdown
//   - error if the server fails to start or shutdown encounters an error
func (s *Server) Start(ctx context.Context) error {
	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening",
			"addr", s.config.Addr(),
			"base_path", s.config.BasePath,
		)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
				// Context was cancelled, error is not needed
			}
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		logger.Info("API server shutdown signal received")
		// Create new context with timeout for graceful shutdown
		// Don't use the cancelled ctx as it would cause immediate shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop initiates graceful shutdown of the API server.
//
// Stop is safe to call multiple times and safe to call concurrently with
// Start().
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("API server shutdown initiated")

		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("API server shutdown error: %w", err)
			logger.Error("API server shutdown error", "error", err)
		} else {
			logger.Info("API server stopped gracefully")
		}
	})
	return shutdownErr
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.config.Addr()
}
