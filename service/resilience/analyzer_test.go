package resilience

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privascan/privascan/service/analysis"
)

type countingAnalyzer struct {
	calls atomic.Int64
	err   error
}

func (c *countingAnalyzer) Analyze(ctx context.Context, wallet string) (*analysis.WalletAnalysis, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &analysis.WalletAnalysis{
		Wallet:         wallet,
		PrivacyScore:   88,
		ComplianceTier: analysis.TierLowRisk,
	}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResilientAnalyzerCachesResults(t *testing.T) {
	inner := &countingAnalyzer{}
	r := NewResilientAnalyzer(inner, time.Hour, nil, testLogger())
	defer r.Stop()

	first, err := r.Analyze(context.Background(), "wallet1")
	require.NoError(t, err)

	second, err := r.Analyze(context.Background(), "wallet1")
	require.NoError(t, err)

	assert.Same(t, first, second, "second lookup served from cache")
	assert.Equal(t, int64(1), inner.calls.Load())
}

func TestResilientAnalyzerDistinctWallets(t *testing.T) {
	inner := &countingAnalyzer{}
	r := NewResilientAnalyzer(inner, time.Hour, nil, testLogger())
	defer r.Stop()

	_, err := r.Analyze(context.Background(), "wallet1")
	require.NoError(t, err)
	_, err = r.Analyze(context.Background(), "wallet2")
	require.NoError(t, err)

	assert.Equal(t, int64(2), inner.calls.Load())
}

func TestResilientAnalyzerErrorsNotCached(t *testing.T) {
	inner := &countingAnalyzer{err: fmt.Errorf("engine down")}
	r := NewResilientAnalyzer(inner, time.Hour, nil, testLogger())
	defer r.Stop()

	_, err := r.Analyze(context.Background(), "wallet1")
	require.Error(t, err)

	inner.err = nil
	result, err := r.Analyze(context.Background(), "wallet1")
	require.NoError(t, err)
	assert.Equal(t, "wallet1", result.Wallet)
	assert.Equal(t, int64(2), inner.calls.Load(), "failed lookups must retry upstream")
}

func TestResilientAnalyzerInvalidate(t *testing.T) {
	inner := &countingAnalyzer{}
	r := NewResilientAnalyzer(inner, time.Hour, nil, testLogger())
	defer r.Stop()

	_, err := r.Analyze(context.Background(), "wallet1")
	require.NoError(t, err)

	r.Invalidate("wallet1")

	_, err = r.Analyze(context.Background(), "wallet1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), inner.calls.Load())
}

func TestResilientAnalyzerTTLExpiry(t *testing.T) {
	inner := &countingAnalyzer{}
	r := NewResilientAnalyzer(inner, time.Hour, nil, testLogger())
	defer r.Stop()

	base := time.Now()
	r.cache.now = func() time.Time { return base }

	_, err := r.Analyze(context.Background(), "wallet1")
	require.NoError(t, err)

	r.cache.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, err = r.Analyze(context.Background(), "wallet1")
	require.NoError(t, err)

	assert.Equal(t, int64(2), inner.calls.Load())
}

func TestResilientAnalyzerDefaultTTL(t *testing.T) {
	r := NewResilientAnalyzer(&countingAnalyzer{}, 0, nil, testLogger())
	defer r.Stop()

	assert.Equal(t, DefaultAnalysisTTL, r.cache.ttl)
}
