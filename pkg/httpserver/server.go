// Package httpserver exposes the engine's control surface: task creation
// and cancellation, close opportunities, orderbook reads, metrics and
// health probes. Handlers are thin adapters; semantics live in the
// scheduler and the position reconciler.
package httpserver

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/apri1one/predict-arb-sub004/internal/positions"
	"github.com/apri1one/predict-arb-sub004/pkg/healthprobe"
	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// TaskService is the scheduler surface the API exposes.
type TaskService interface {
	Submit(task *types.Task) (*types.Task, error)
	Cancel(taskID string) error
	Get(taskID string) (*types.Task, bool)
	List() []*types.Task
}

// CloseQuoteSource supplies the reconciler's current close opportunities.
type CloseQuoteSource interface {
	CloseQuotes() []positions.CloseQuote
}

// Server provides the HTTP control plane, metrics and health checks.
type Server struct {
	server        *http.Server
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
}

// Config holds server configuration.
type Config struct {
	Port          string
	AuthToken     string
	Logger        *zap.Logger
	HealthChecker *healthprobe.HealthChecker
	Tasks         TaskService
	CloseQuotes   CloseQuoteSource
	Books         BookSource
	Mappings      MappingSource
}

// New creates a new HTTP server.
func New(cfg *Config) *Server {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Unguarded probes and metrics
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/health", cfg.HealthChecker.Health())
	r.Get("/ready", cfg.HealthChecker.Ready())

	// API routes behind the bearer guard
	r.Group(func(r chi.Router) {
		r.Use(bearerGuard(cfg.AuthToken))

		if cfg.Tasks != nil {
			th := NewTaskHandler(cfg.Tasks, cfg.Logger)
			r.Post("/api/tasks", th.HandleCreate)
			r.Get("/api/tasks", th.HandleList)
			r.Get("/api/tasks/{taskID}", th.HandleGet)
			r.Delete("/api/tasks/{taskID}", th.HandleCancel)
		}

		if cfg.CloseQuotes != nil {
			ch := NewCloseOpportunityHandler(cfg.CloseQuotes, cfg.Logger)
			r.Get("/api/close-opportunities", ch.HandleList)
		}

		if cfg.Books != nil && cfg.Mappings != nil {
			obHandler := NewOrderbookHandler(cfg.Books, cfg.Mappings, cfg.Logger)
			r.Get("/api/orderbook", obHandler.HandleOrderbook)
		}
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		server:        server,
		logger:        cfg.Logger,
		healthChecker: cfg.HealthChecker,
	}
}

// bearerGuard rejects API requests without the configured bearer token.
// An empty token disables the guard.
func bearerGuard(token string) func(http.Handler) http.Handler {
	expect := "Bearer " + token
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" {
				got := r.Header.Get("Authorization")
				if subtle.ConstantTimeCompare([]byte(got), []byte(expect)) != 1 {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusUnauthorized)
					_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Start starts the HTTP server.
// This is a blocking call that returns when the server stops or encounters an error.
func (s *Server) Start() error {
	s.logger.Info("http-server-starting", zap.String("addr", s.server.Addr))

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http-server-shutting-down")

	err := s.server.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("http-server-shutdown-complete")
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
