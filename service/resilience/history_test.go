package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privascan/privascan/service/analysis"
)

const historyTestWallet = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"

type countingFetcher struct {
	calls atomic.Int64
	nodes []analysis.TransactionNode
	err   error
}

func (c *countingFetcher) FetchHistory(ctx context.Context, wallet string, limit int) ([]analysis.TransactionNode, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.nodes, nil
}

func historyNodes() []analysis.TransactionNode {
	return []analysis.TransactionNode{
		{
			Signature:      "sig_1",
			Timestamp:      time.Now().Add(-time.Hour).Unix(),
			Type:           "transfer",
			Counterparties: []string{"9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"},
		},
	}
}

func TestCachedHistoryFetcherServesRepeatLookups(t *testing.T) {
	inner := &countingFetcher{nodes: historyNodes()}
	f := NewCachedHistoryFetcher(inner, 10*time.Minute, nil, testLogger())

	first, err := f.FetchHistory(context.Background(), historyTestWallet, 10)
	require.NoError(t, err)
	second, err := f.FetchHistory(context.Background(), historyTestWallet, 10)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), inner.calls.Load())
}

func TestCachedHistoryFetcherDistinctWallets(t *testing.T) {
	inner := &countingFetcher{nodes: historyNodes()}
	f := NewCachedHistoryFetcher(inner, 10*time.Minute, nil, testLogger())

	_, err := f.FetchHistory(context.Background(), "walletA", 10)
	require.NoError(t, err)
	_, err = f.FetchHistory(context.Background(), "walletB", 10)
	require.NoError(t, err)

	assert.Equal(t, int64(2), inner.calls.Load())
}

func TestCachedHistoryFetcherErrorsNotCached(t *testing.T) {
	inner := &countingFetcher{nodes: historyNodes(), err: errors.New("rpc unavailable")}
	f := NewCachedHistoryFetcher(inner, 10*time.Minute, nil, testLogger())

	_, err := f.FetchHistory(context.Background(), historyTestWallet, 10)
	require.Error(t, err)

	inner.err = nil
	nodes, err := f.FetchHistory(context.Background(), historyTestWallet, 10)
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
	assert.Equal(t, int64(2), inner.calls.Load())

	// The successful result is now served from cache.
	_, err = f.FetchHistory(context.Background(), historyTestWallet, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), inner.calls.Load())
}

func TestCachedHistoryFetcherTTLExpiry(t *testing.T) {
	inner := &countingFetcher{nodes: historyNodes()}
	f := NewCachedHistoryFetcher(inner, 10*time.Minute, nil, testLogger())

	_, err := f.FetchHistory(context.Background(), historyTestWallet, 10)
	require.NoError(t, err)

	f.cache.now = func() time.Time { return time.Now().Add(11 * time.Minute) }

	_, err = f.FetchHistory(context.Background(), historyTestWallet, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), inner.calls.Load())
}

func TestCachedHistoryFetcherInvalidate(t *testing.T) {
	inner := &countingFetcher{nodes: historyNodes()}
	f := NewCachedHistoryFetcher(inner, 10*time.Minute, nil, testLogger())

	_, err := f.FetchHistory(context.Background(), historyTestWallet, 10)
	require.NoError(t, err)

	f.Invalidate(historyTestWallet)

	_, err = f.FetchHistory(context.Background(), historyTestWallet, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), inner.calls.Load())
}

func TestCachedHistoryFetcherDefaultTTL(t *testing.T) {
	f := NewCachedHistoryFetcher(&countingFetcher{}, 0, nil, testLogger())
	assert.Equal(t, DefaultHistoryTTL, f.cache.ttl)
}

// A repeated analysis within the history TTL must not touch RPC again, even
// when the analysis result itself was not cached.
func TestEngineRepeatAnalysisUsesHistoryCache(t *testing.T) {
	inner := &countingFetcher{nodes: historyNodes()}
	f := NewCachedHistoryFetcher(inner, 10*time.Minute, nil, testLogger())
	engine := analysis.NewEngine(f, nil, 10, nil, testLogger())

	first, err := engine.Analyze(context.Background(), historyTestWallet)
	require.NoError(t, err)
	second, err := engine.Analyze(context.Background(), historyTestWallet)
	require.NoError(t, err)

	assert.Equal(t, int64(1), inner.calls.Load())
	assert.Equal(t, first.PrivacyScore, second.PrivacyScore)
	assert.Equal(t, analysis.DataSourceRPC, second.Metadata.DataSource)
}
