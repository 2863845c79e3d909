package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/privascan/privascan/service/analysis"
	"github.com/privascan/privascan/service/metrics"
)

const (
	// DefaultHistoryTTL is how long raw transaction history is reused before
	// the next analysis refetches it from RPC.
	DefaultHistoryTTL = 10 * time.Minute

	historyCacheName = "history"
)

// CachedHistoryFetcher wraps a HistoryFetcher with a read-through TTL cache
// keyed by wallet. An analysis-cache miss otherwise costs a signature lookup
// plus batched detail calls against the RPC pools even when the underlying
// history has not changed. The fetch limit is fixed per process, so it is
// not part of the cache key.
type CachedHistoryFetcher struct {
	inner   analysis.HistoryFetcher
	cache   *Cache[[]analysis.TransactionNode]
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewCachedHistoryFetcher wraps inner. ttl <= 0 selects DefaultHistoryTTL,
// m may be nil.
func NewCachedHistoryFetcher(inner analysis.HistoryFetcher, ttl time.Duration, m *metrics.Metrics, logger *slog.Logger) *CachedHistoryFetcher {
	if ttl <= 0 {
		ttl = DefaultHistoryTTL
	}
	return &CachedHistoryFetcher{
		inner:   inner,
		cache:   NewCache[[]analysis.TransactionNode](ttl),
		metrics: m,
		logger:  logger,
	}
}

// FetchHistory returns the cached history for the wallet when fresh,
// otherwise fetches through the wrapped fetcher. Fetch errors are never
// cached; the next call retries upstream.
func (f *CachedHistoryFetcher) FetchHistory(ctx context.Context, wallet string, limit int) ([]analysis.TransactionNode, error) {
	if nodes, ok := f.cache.Get(wallet); ok {
		if f.metrics != nil {
			f.metrics.RecordCacheHit(historyCacheName)
		}
		f.logger.DebugContext(ctx, "history cache hit", "wallet", wallet)
		return nodes, nil
	}
	if f.metrics != nil {
		f.metrics.RecordCacheMiss(historyCacheName)
	}

	nodes, err := f.inner.FetchHistory(ctx, wallet, limit)
	if err != nil {
		return nil, err
	}
	f.cache.Set(wallet, nodes)
	return nodes, nil
}

// Invalidate drops any cached history for the wallet.
func (f *CachedHistoryFetcher) Invalidate(wallet string) {
	f.cache.Delete(wallet)
}
