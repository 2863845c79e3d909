package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/privascan/privascan/service/analysis"
)

// ErrNotFound is returned when no cached report exists for a wallet.
var ErrNotFound = errors.New("report not found")

const (
	// BucketName is the JetStream KeyValue bucket holding report JSON.
	BucketName = "privascan-reports"
)

// ReportCache caches serialized analyses for fast report reads. The durable
// copy lives in Postgres; this bucket only absorbs repeated lookups.
type ReportCache interface {
	Get(ctx context.Context, wallet string) (*analysis.WalletAnalysis, error)
	Put(ctx context.Context, result *analysis.WalletAnalysis) error
	Delete(ctx context.Context, wallet string) error
	Close() error
}

// JetStreamReportCache is a ReportCache backed by a NATS JetStream KeyValue
// bucket with a server-side TTL.
type JetStreamReportCache struct {
	nc     *nats.Conn
	bucket jetstream.KeyValue
	logger *slog.Logger
}

// NewReportCache connects to NATS and ensures the report bucket exists with
// the given TTL.
func NewReportCache(natsURL string, ttl time.Duration, logger *slog.Logger) (*JetStreamReportCache, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("privascan-report-cache"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bucket, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      BucketName,
		Description: "Cached wallet privacy reports",
		TTL:         ttl,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create report bucket: %w", err)
	}

	logger.Info("report cache initialized", "bucket", BucketName, "ttl", ttl)

	return &JetStreamReportCache{
		nc:     nc,
		bucket: bucket,
		logger: logger,
	}, nil
}

// Get returns the cached analysis for a wallet, or ErrNotFound.
func (c *JetStreamReportCache) Get(ctx context.Context, wallet string) (*analysis.WalletAnalysis, error) {
	entry, err := c.bucket.Get(ctx, wallet)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read cached report: %w", err)
	}

	var result analysis.WalletAnalysis
	if err := json.Unmarshal(entry.Value(), &result); err != nil {
		return nil, fmt.Errorf("failed to decode cached report: %w", err)
	}
	return &result, nil
}

// Put stores the analysis under its wallet key.
func (c *JetStreamReportCache) Put(ctx context.Context, result *analysis.WalletAnalysis) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if _, err := c.bucket.Put(ctx, result.Wallet, data); err != nil {
		return fmt.Errorf("failed to cache report: %w", err)
	}
	c.logger.Debug("cached report", "wallet", result.Wallet)
	return nil
}

// Delete removes the cached analysis for a wallet.
func (c *JetStreamReportCache) Delete(ctx context.Context, wallet string) error {
	if err := c.bucket.Delete(ctx, wallet); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete cached report: %w", err)
	}
	return nil
}

// Close closes the NATS connection.
func (c *JetStreamReportCache) Close() error {
	if c.nc != nil {
		c.nc.Close()
	}
	return nil
}
