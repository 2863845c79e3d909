package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Solana RPC configuration. SolanaRPCURLs serve signature lookups;
	// SolanaBatchRPCURLs serve batched transaction-detail lookups and must
	// point at providers that accept batch requests.
	SolanaRPCURLs      []string
	SolanaBatchRPCURLs []string

	// Analysis configuration
	FetchLimit       int
	AnalysisCacheTTL time.Duration
	HistoryCacheTTL  time.Duration

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Email configuration. ResendAPIKey empty disables report delivery.
	ResendAPIKey string
	EmailFrom    string

	// Report retention
	ReportRetention time.Duration
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Database configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Solana RPC configuration
	cfg.SolanaRPCURLs = splitURLs(os.Getenv("SOLANA_RPC_URLS"))
	if len(cfg.SolanaRPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URLS is required (comma-separated)"))
	}

	cfg.SolanaBatchRPCURLs = splitURLs(os.Getenv("SOLANA_BATCH_RPC_URLS"))
	if len(cfg.SolanaBatchRPCURLs) == 0 {
		// Fall back to the signature pool; providers that reject batches
		// are rotated away from at runtime.
		cfg.SolanaBatchRPCURLs = cfg.SolanaRPCURLs
	}

	// Analysis configuration
	fetchLimit, err := parseInt("FETCH_LIMIT", 10)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.FetchLimit = fetchLimit
	}

	analysisTTL, err := parseDuration("ANALYSIS_CACHE_TTL", "1h")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.AnalysisCacheTTL = analysisTTL
	}

	historyTTL, err := parseDuration("HISTORY_CACHE_TTL", "10m")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.HistoryCacheTTL = historyTTL
	}

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "privascan-analysis")

	// Email configuration
	cfg.ResendAPIKey = os.Getenv("RESEND_API_KEY")
	cfg.EmailFrom = getEnvOrDefault("EMAIL_FROM", "reports@privascan.io")

	// Report retention
	retention, err := parseDuration("REPORT_RETENTION", "720h")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ReportRetention = retention
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if len(c.SolanaRPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("SolanaRPCURLs is required"))
	}

	if c.FetchLimit <= 0 {
		errs = append(errs, fmt.Errorf("FetchLimit must be positive"))
	}

	if c.AnalysisCacheTTL < time.Minute {
		errs = append(errs, fmt.Errorf("AnalysisCacheTTL must be at least 1 minute"))
	}

	if c.HistoryCacheTTL < time.Minute {
		errs = append(errs, fmt.Errorf("HistoryCacheTTL must be at least 1 minute"))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if c.ReportRetention < time.Hour {
		errs = append(errs, fmt.Errorf("ReportRetention must be at least 1 hour"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// splitURLs parses a comma-separated URL list, dropping empty entries.
func splitURLs(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	urls := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	return urls
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
