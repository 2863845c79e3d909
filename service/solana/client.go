package solana

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/privascan/privascan/service/analysis"
	"github.com/privascan/privascan/service/metrics"
)

const (
	// maxAttempts bounds the retry loop per RPC operation.
	maxAttempts = 5

	// detailBatchSize is how many transaction bodies we resolve per batch
	// request against the batch pool.
	detailBatchSize = 5

	// detailBatchDelay spaces consecutive batch requests to stay under free
	// tier rate limits.
	detailBatchDelay = 100 * time.Millisecond
)

// Fetcher retrieves and normalizes recent transaction history for a wallet.
// Signature lookups and transaction-detail lookups run against separate
// endpoint pools because not every provider supports batched detail requests.
type Fetcher struct {
	sigPool   *EndpointPool
	batchPool *EndpointPool
	metrics   *metrics.Metrics
	logger    *slog.Logger

	// sleep is swappable in tests so backoff does not slow the suite down.
	sleep func(time.Duration)
}

// NewFetcher creates a Fetcher over the given endpoint pools. metrics may be
// nil to disable recording.
func NewFetcher(sigPool, batchPool *EndpointPool, m *metrics.Metrics, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		sigPool:   sigPool,
		batchPool: batchPool,
		metrics:   m,
		logger:    logger,
		sleep:     time.Sleep,
	}
}

// FetchHistory returns up to limit recent transactions for the wallet,
// normalized for analysis. It satisfies analysis.HistoryFetcher.
func (f *Fetcher) FetchHistory(ctx context.Context, wallet string, limit int) ([]analysis.TransactionNode, error) {
	pubkey, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet public key: %w", err)
	}

	sigs, err := f.fetchSignatures(ctx, pubkey, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch signatures for %s: %w", wallet, err)
	}
	if len(sigs) == 0 {
		return nil, nil
	}

	results, err := f.fetchDetails(ctx, sigs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction details for %s: %w", wallet, err)
	}

	nodes := make([]analysis.TransactionNode, 0, len(results))
	for i, result := range results {
		if result == nil {
			continue
		}
		node, err := parseTransaction(wallet, sigs[i], result)
		if err != nil {
			f.logger.WarnContext(ctx, "skipping unparseable transaction",
				"wallet", wallet,
				"signature", sigs[i].Signature.String(),
				"error", err,
			)
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// fetchSignatures retrieves up to limit recent signatures for the address.
func (f *Fetcher) fetchSignatures(ctx context.Context, pubkey solana.PublicKey, limit int) ([]*rpc.TransactionSignature, error) {
	opts := &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentConfirmed,
	}

	var sigs []*rpc.TransactionSignature
	err := f.withRetry(ctx, f.sigPool, "getSignaturesForAddress", func(ctx context.Context, ep *Endpoint) error {
		var err error
		sigs, err = ep.Client.GetSignaturesForAddress(ctx, pubkey, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sigs, nil
}

// fetchDetails resolves transaction bodies in small spaced batches. The
// result slice is parallel to sigs; unresolvable entries are nil.
func (f *Fetcher) fetchDetails(ctx context.Context, sigs []*rpc.TransactionSignature) ([]*rpc.GetTransactionResult, error) {
	maxVersion := uint64(0)
	opts := &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	}

	results := make([]*rpc.GetTransactionResult, len(sigs))
	for start := 0; start < len(sigs); start += detailBatchSize {
		end := start + detailBatchSize
		if end > len(sigs) {
			end = len(sigs)
		}

		batch := make([]solana.Signature, 0, end-start)
		for _, sig := range sigs[start:end] {
			batch = append(batch, sig.Signature)
		}

		var batchResults []*rpc.GetTransactionResult
		err := f.withRetry(ctx, f.batchPool, "getTransaction", func(ctx context.Context, ep *Endpoint) error {
			var err error
			batchResults, err = ep.Client.GetTransactions(ctx, batch, opts)
			return err
		})
		if err != nil {
			return nil, err
		}
		copy(results[start:end], batchResults)

		if end < len(sigs) {
			f.sleep(detailBatchDelay)
		}
	}
	return results, nil
}

// withRetry runs op against endpoints picked from the pool, retrying up to
// maxAttempts times. Rate limits back off exponentially before rotating;
// transport timeouts and batch-unsupported responses rotate immediately;
// anything else propagates.
func (f *Fetcher) withRetry(ctx context.Context, pool *EndpointPool, method string, op func(context.Context, *Endpoint) error) error {
	ep := pool.Pick()
	if ep == nil {
		return fmt.Errorf("no endpoints configured in pool %s", pool.Name())
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		start := time.Now()
		err := op(ctx, ep)
		if f.metrics != nil {
			status := "success"
			if err != nil {
				status = "error"
			}
			f.metrics.RecordRPCCall(method, status, ep.URL, time.Since(start).Seconds())
		}
		if err == nil {
			return nil
		}
		lastErr = err

		switch classifyFailure(err) {
		case failureRateLimit:
			pool.ReportFailure(ep.URL)
			if f.metrics != nil {
				f.metrics.RecordRateLimitHit(ep.URL)
				f.metrics.RecordRPCRetry(method, "rate_limit")
			}
			if attempt == 0 {
				// First 429 is usually a burst; the same endpoint often
				// recovers after one backoff.
				backoff := time.Duration(1<<attempt) * time.Second
				f.logger.Warn("rpc rate limited, backing off",
					"method", method,
					"endpoint", ep.URL,
					"backoff", backoff,
				)
				f.sleep(backoff)
			} else {
				ep = f.rotate(pool, ep, method, "rate_limit")
			}
		case failureRotate:
			pool.ReportFailure(ep.URL)
			if f.metrics != nil {
				f.metrics.RecordRPCRetry(method, "rotate")
			}
			ep = f.rotate(pool, ep, method, "transport")
		default:
			return err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", method, maxAttempts, lastErr)
}

// rotate picks the next endpoint from the pool, logging when it changes.
func (f *Fetcher) rotate(pool *EndpointPool, current *Endpoint, method, reason string) *Endpoint {
	next := pool.Pick()
	if next == nil {
		return current
	}
	if next.URL != current.URL {
		if f.metrics != nil {
			f.metrics.RecordRotation(pool.Name())
		}
		f.logger.Warn("rotating rpc endpoint",
			"pool", pool.Name(),
			"method", method,
			"reason", reason,
			"from", current.URL,
			"to", next.URL,
		)
	}
	return next
}
