package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/privascan/privascan/service/analysis"
	"github.com/privascan/privascan/service/config"
	"github.com/privascan/privascan/service/db"
	"github.com/privascan/privascan/service/kv"
	"github.com/privascan/privascan/service/metrics"
	"github.com/privascan/privascan/service/resilience"
	"github.com/privascan/privascan/service/server"
	"github.com/privascan/privascan/service/solana"
	"github.com/privascan/privascan/service/temporal"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	// Verify database connection
	if err := dbPool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	// Initialize database store
	store := db.NewStore(dbPool, metricsCollector)

	// Initialize Solana endpoint pools and fetcher
	sigPool := solana.NewEndpointPool("signatures", cfg.SolanaRPCURLs, solana.NewRPCClient, logger)
	batchPool := solana.NewEndpointPool("details", cfg.SolanaBatchRPCURLs, solana.NewRPCClient, logger)
	fetcher := solana.NewFetcher(sigPool, batchPool, metricsCollector, logger)
	logger.Info("initialized solana RPC pools",
		"signature_endpoints", sigPool.Len(),
		"detail_endpoints", batchPool.Len(),
	)

	// Initialize analysis engine wrapped with caching and deduplication.
	// Raw history and completed analyses are cached independently; a fresh
	// history window can serve several analysis-cache misses.
	history := resilience.NewCachedHistoryFetcher(fetcher, cfg.HistoryCacheTTL, metricsCollector, logger)
	engine := analysis.NewEngine(history, nil, cfg.FetchLimit, metricsCollector, logger)
	analyzer := resilience.NewResilientAnalyzer(engine, cfg.AnalysisCacheTTL, metricsCollector, logger)

	// Initialize report cache (optional; server degrades to Postgres-only reads)
	var reportCache kv.ReportCache
	jsCache, err := kv.NewReportCache(cfg.NATSURL, cfg.AnalysisCacheTTL, logger)
	if err != nil {
		logger.Warn("report cache unavailable, serving reports from database only", "error", err)
	} else {
		reportCache = jsCache
		defer jsCache.Close()
	}

	// Initialize Temporal client for starting analysis workflows
	temporalClient, err := temporal.NewClient(
		cfg.TemporalHost,
		cfg.TemporalNamespace,
		cfg.TemporalTaskQueue,
		logger,
	)
	if err != nil {
		logger.Error("failed to create temporal client", "error", err)
		os.Exit(1)
	}
	defer temporalClient.Close()
	logger.Info("connected to temporal",
		"host", cfg.TemporalHost,
		"namespace", cfg.TemporalNamespace,
	)

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, cfg, store, reportCache, analyzer, temporalClient, metricsCollector, logger)

	logger.Info("server initialized, all dependencies ready",
		"nats_url", cfg.NATSURL,
		"temporal_host", cfg.TemporalHost,
		"fetch_limit", cfg.FetchLimit,
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
