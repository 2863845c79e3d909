package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/privascan/privascan/service/metrics"
)

// ErrInvalidAddress is returned for malformed or empty wallet addresses.
// It is the only error Analyze can surface; every upstream failure is
// absorbed by the synthetic fallback path.
var ErrInvalidAddress = errors.New("invalid wallet address")

const (
	// DefaultFetchLimit bounds the transaction window per analysis. The
	// detectors are heuristic pattern matchers over a small recent window,
	// not a full-history graph analysis.
	DefaultFetchLimit = 10

	maxAddressLength = 100
)

// Solana addresses are base58 (no 0, O, I, l).
var validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)

// ValidateAddress checks that a wallet address is plausibly base58.
func ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("%w: address is empty", ErrInvalidAddress)
	}
	if len(address) > maxAddressLength {
		return fmt.Errorf("%w: address exceeds %d characters", ErrInvalidAddress, maxAddressLength)
	}
	if !validAddressRegex.MatchString(address) {
		return fmt.Errorf("%w: address contains non-base58 characters", ErrInvalidAddress)
	}
	return nil
}

// HistoryFetcher retrieves the normalized recent transaction history for an
// address. Implementations own retries, endpoint rotation, and raw-record
// normalization; the engine only sees clean TransactionNodes or an error.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, wallet string, limit int) ([]TransactionNode, error)
}

// Engine sequences the analysis pipeline: fetch, parse, classify, score,
// resolve, recommend. It guarantees a complete WalletAnalysis for every
// syntactically valid address; on upstream failure it substitutes a
// deterministic synthetic history rather than surfacing the error.
type Engine struct {
	fetcher    HistoryFetcher
	classifier *Classifier
	known      *KnownAddresses
	fetchLimit int
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewEngine creates an analysis engine. known may be nil for the built-in
// reference tables, metrics may be nil to disable recording, and fetchLimit
// <= 0 selects DefaultFetchLimit.
func NewEngine(fetcher HistoryFetcher, known *KnownAddresses, fetchLimit int, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if known == nil {
		known = DefaultKnownAddresses()
	}
	if fetchLimit <= 0 {
		fetchLimit = DefaultFetchLimit
	}
	return &Engine{
		fetcher:    fetcher,
		classifier: NewClassifier(known),
		known:      known,
		fetchLimit: fetchLimit,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// Analyze runs the full pipeline for one wallet address. It fails only on
// invalid input; all other failure modes degrade to the fallback path.
func (e *Engine) Analyze(ctx context.Context, wallet string) (*WalletAnalysis, error) {
	if err := ValidateAddress(wallet); err != nil {
		return nil, err
	}

	start := e.now()
	dataSource := DataSourceRPC

	nodes, err := e.fetcher.FetchHistory(ctx, wallet, e.fetchLimit)
	if err != nil {
		// Availability over correctness: every upstream failure degrades to
		// a clearly tagged synthetic history run through the same pipeline.
		e.logger.WarnContext(ctx, "history fetch failed, using synthetic fallback",
			"wallet", wallet,
			"error", err,
		)
		nodes = GenerateSyntheticHistory(wallet, start)
		dataSource = DataSourceSynthetic
	}

	result := e.analyzeNodes(wallet, nodes, dataSource, start)

	if e.metrics != nil {
		e.metrics.RecordAnalysis(string(result.ComplianceTier), dataSource, e.now().Sub(start).Seconds())
		for _, v := range result.LeakageVectors {
			e.metrics.RecordLeakageVector(string(v.Category), string(v.Severity))
		}
	}

	e.logger.InfoContext(ctx, "wallet analysis complete",
		"wallet", wallet,
		"privacy_score", result.PrivacyScore,
		"compliance_tier", result.ComplianceTier,
		"vectors", len(result.LeakageVectors),
		"transaction_count", result.Metadata.TransactionCount,
		"data_source", dataSource,
	)

	return result, nil
}

// analyzeNodes runs the pure classify-score-resolve-recommend stages. Given
// identical (wallet, nodes) input it produces identical output; there is no
// randomness past the fetch boundary.
func (e *Engine) analyzeNodes(wallet string, nodes []TransactionNode, dataSource string, start time.Time) *WalletAnalysis {
	vectors := e.classifier.Classify(nodes)
	score := CalculatePrivacyScore(vectors)
	tier := DetermineComplianceTier(score, vectors, len(nodes))
	recommendations := GenerateRecommendations(vectors)
	insights := GenerateInsights(len(nodes), score)

	var accountAge time.Duration
	if len(nodes) > 0 {
		oldest := nodes[0].Timestamp
		for _, n := range nodes {
			if n.Timestamp < oldest {
				oldest = n.Timestamp
			}
		}
		accountAge = start.Sub(time.Unix(oldest, 0))
	}

	return &WalletAnalysis{
		Wallet:          wallet,
		PrivacyScore:    score,
		ComplianceTier:  tier,
		LeakageVectors:  vectors,
		Insights:        insights,
		Recommendations: recommendations,
		Metadata: Metadata{
			AnalyzedAt:       start,
			TransactionCount: len(nodes),
			AccountAge:       accountAge,
			DataSource:       dataSource,
			ProcessingTime:   e.now().Sub(start),
			Transactions:     nodes,
		},
	}
}

// Graph builds the counterparty visualization graph for a completed analysis.
func (e *Engine) Graph(result *WalletAnalysis) GraphData {
	return BuildGraph(result.Wallet, result.Metadata.Transactions, e.known)
}
