package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/privascan/privascan/service/analysis"
	"github.com/privascan/privascan/service/config"
	"github.com/privascan/privascan/service/db"
	"github.com/privascan/privascan/service/kv"
	"github.com/privascan/privascan/service/metrics"
	natspkg "github.com/privascan/privascan/service/nats"
	"github.com/privascan/privascan/service/notify"
	"github.com/privascan/privascan/service/resilience"
	"github.com/privascan/privascan/service/solana"
	"github.com/privascan/privascan/service/temporal"
)

const cleanupInterval = 6 * time.Hour

func main() {
	// Load and validate configuration from environment
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting temporal worker",
		"temporal_host", cfg.TemporalHost,
		"namespace", cfg.TemporalNamespace,
		"task_queue", cfg.TemporalTaskQueue,
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
	logger.Info("Prometheus metrics collector initialized")

	// Start metrics HTTP server
	metricsAddr := getEnv("METRICS_ADDR", ":9091")
	metricsServer := &http.Server{
		Addr:    metricsAddr,
		Handler: promhttp.Handler(),
	}

	go func() {
		logger.Info("starting metrics HTTP server", "addr", metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", "error", err)
		}
	}()

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

	// Initialize analysis engine with a raw-history cache in front of RPC
	history := resilience.NewCachedHistoryFetcher(fetcher, cfg.HistoryCacheTTL, metricsCollector, logger)
	engine := analysis.NewEngine(history, nil, cfg.FetchLimit, metricsCollector, logger)

	// Initialize NATS publisher
	natsPublisher, err := natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
	if err != nil {
		logger.Error("failed to create NATS publisher", "error", err)
		os.Exit(1)
	}
	defer natsPublisher.Close()
	logger.Info("connected to NATS", "url", cfg.NATSURL)

	// Initialize report cache (optional)
	var reportCache temporal.ReportCacheInterface
	jsCache, err := kv.NewReportCache(cfg.NATSURL, cfg.AnalysisCacheTTL, logger)
	if err != nil {
		logger.Warn("report cache unavailable, skipping cache warming", "error", err)
	} else {
		reportCache = jsCache
		defer jsCache.Close()
	}

	// Initialize email sender
	var emailSender temporal.EmailSenderInterface
	if cfg.ResendAPIKey != "" {
		emailSender = notify.NewResendSender(cfg.ResendAPIKey, cfg.EmailFrom, logger)
		logger.Info("email delivery enabled", "from", cfg.EmailFrom)
	} else {
		emailSender = notify.NewNoopSender(logger)
		logger.Info("email delivery disabled (no RESEND_API_KEY)")
	}

	// Initialize Temporal client for schedule management
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

	// Ensure the retention cleanup schedule exists
	if err := temporalClient.EnsureCleanupSchedule(ctx, cleanupInterval); err != nil {
		logger.Error("failed to ensure cleanup schedule", "error", err)
		os.Exit(1)
	}

	// Initialize Temporal worker
	workerConfig := temporal.WorkerConfig{
		TemporalHost:      cfg.TemporalHost,
		TemporalNamespace: cfg.TemporalNamespace,
		TaskQueue:         cfg.TemporalTaskQueue,
		Store:             store,
		Analyzer:          engine,
		ReportCache:       reportCache,
		Publisher:         natsPublisher,
		EmailSender:       emailSender,
		Metrics:           metricsCollector,
		Logger:            logger,
		ReportRetention:   cfg.ReportRetention,
		EmailRateWindow:   24 * time.Hour,
	}

	worker, err := temporal.NewWorker(workerConfig)
	if err != nil {
		logger.Error("failed to create temporal worker", "error", err)
		os.Exit(1)
	}

	logger.Info("temporal worker initialized, all dependencies ready",
		"temporal_host", cfg.TemporalHost,
		"temporal_namespace", cfg.TemporalNamespace,
		"task_queue", cfg.TemporalTaskQueue,
	)

	// Start worker in background
	workerErrors := make(chan error, 1)
	go func() {
		logger.Info("starting temporal worker")
		workerErrors <- worker.Start()
	}()

	// Wait for shutdown signal or worker error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-workerErrors:
		logger.Error("temporal worker error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Stop worker gracefully
		logger.Info("stopping temporal worker")
		worker.Stop()
		logger.Info("temporal worker stopped")

		logger.Info("shutdown complete")
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

// getEnv returns the value of an environment variable or a default if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
