package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/privascan/privascan/service/analysis"
	"github.com/privascan/privascan/service/config"
	"github.com/privascan/privascan/service/db"
	"github.com/privascan/privascan/service/kv"
	"github.com/privascan/privascan/service/metrics"
	"github.com/privascan/privascan/service/resilience"
	"github.com/privascan/privascan/service/temporal"
)

// Server represents the HTTP server for the privacy analysis service.
type Server struct {
	addr        string
	cfg         *config.Config
	store       *db.Store
	reportCache kv.ReportCache
	analyzer    *resilience.ResilientAnalyzer
	scheduler   temporal.Scheduler
	known       *analysis.KnownAddresses
	metrics     *metrics.Metrics
	logger      *slog.Logger
	server      *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The scheduler starts background analysis workflows for queued jobs.
// The reportCache is optional - if nil, report reads go straight to Postgres.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, cfg *config.Config, store *db.Store, reportCache kv.ReportCache, analyzer *resilience.ResilientAnalyzer, scheduler temporal.Scheduler, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:        addr,
		cfg:         cfg,
		store:       store,
		reportCache: reportCache,
		analyzer:    analyzer,
		scheduler:   scheduler,
		known:       analysis.DefaultKnownAddresses(),
		metrics:     m,
		logger:      logger,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Analysis routes
	mux.Handle("POST /api/v1/analyses",
		s.instrument("/api/v1/analyses", handleCreateAnalysis(s.store, s.scheduler, s.logger)))
	mux.Handle("GET /api/v1/analyses/{wallet}",
		s.instrument("/api/v1/analyses/{wallet}", handleGetAnalysis(s.store, s.reportCache, s.known, s.logger)))
	mux.Handle("GET /api/v1/score/{wallet}",
		s.instrument("/api/v1/score/{wallet}", handleGetScore(s.analyzer, s.logger)))

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	// Wrap mux with CORS middleware
	handler := corsMiddleware(mux)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// instrument wraps a handler with HTTP metrics recording.
func (s *Server) instrument(name string, h http.Handler) http.Handler {
	if s.metrics == nil {
		return h
	}
	return metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if s.analyzer != nil {
		s.analyzer.Stop()
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Set CORS headers for all requests
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		// Handle preflight OPTIONS requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		// Pass through to next handler
		next.ServeHTTP(w, r)
	})
}
