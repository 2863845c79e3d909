package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/privascan/privascan/service/analysis"
	"github.com/privascan/privascan/service/metrics"
)

const (
	// DefaultAnalysisTTL is how long a completed analysis stays served from
	// memory before a fresh one is computed.
	DefaultAnalysisTTL = time.Hour

	analysisCacheName = "analysis"
)

// Analyzer is anything that can produce a wallet analysis. The concrete
// implementation is the analysis engine; tests substitute counters.
type Analyzer interface {
	Analyze(ctx context.Context, wallet string) (*analysis.WalletAnalysis, error)
}

// ResilientAnalyzer wraps an Analyzer with a read-through TTL cache and
// request deduplication. Repeated lookups within the TTL are served from
// memory; concurrent lookups for the same wallet collapse onto one upstream
// analysis.
type ResilientAnalyzer struct {
	inner   Analyzer
	cache   *Cache[*analysis.WalletAnalysis]
	dedup   *Deduplicator[*analysis.WalletAnalysis]
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewResilientAnalyzer wraps inner. ttl <= 0 selects DefaultAnalysisTTL,
// m may be nil.
func NewResilientAnalyzer(inner Analyzer, ttl time.Duration, m *metrics.Metrics, logger *slog.Logger) *ResilientAnalyzer {
	if ttl <= 0 {
		ttl = DefaultAnalysisTTL
	}
	var onCollapse func()
	var onInFlightChange func(float64)
	if m != nil {
		onCollapse = m.RecordDedupCollapse
		onInFlightChange = m.RecordDedupInFlightChange
	}
	return &ResilientAnalyzer{
		inner:   inner,
		cache:   NewCache[*analysis.WalletAnalysis](ttl),
		dedup:   NewDeduplicator[*analysis.WalletAnalysis](onCollapse, onInFlightChange),
		metrics: m,
		logger:  logger,
	}
}

// Analyze returns a cached analysis when fresh, otherwise computes one via
// the wrapped analyzer, collapsing concurrent requests for the same wallet.
func (r *ResilientAnalyzer) Analyze(ctx context.Context, wallet string) (*analysis.WalletAnalysis, error) {
	if cached, ok := r.cache.Get(wallet); ok {
		if r.metrics != nil {
			r.metrics.RecordCacheHit(analysisCacheName)
		}
		r.logger.DebugContext(ctx, "analysis cache hit", "wallet", wallet)
		return cached, nil
	}
	if r.metrics != nil {
		r.metrics.RecordCacheMiss(analysisCacheName)
	}

	return r.dedup.Do(ctx, wallet, func(ctx context.Context) (*analysis.WalletAnalysis, error) {
		// A concurrent caller may have populated the cache while we waited
		// for the in-flight slot.
		if cached, ok := r.cache.Get(wallet); ok {
			if r.metrics != nil {
				r.metrics.RecordCacheHit(analysisCacheName)
			}
			return cached, nil
		}

		result, err := r.inner.Analyze(ctx, wallet)
		if err != nil {
			return nil, err
		}
		r.cache.Set(wallet, result)
		return result, nil
	})
}

// Invalidate drops any cached analysis for the wallet.
func (r *ResilientAnalyzer) Invalidate(wallet string) {
	r.cache.Delete(wallet)
}

// Stop terminates background maintenance goroutines.
func (r *ResilientAnalyzer) Stop() {
	r.dedup.Stop()
}
