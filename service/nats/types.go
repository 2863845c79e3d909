package nats

import (
	"time"

	"github.com/privascan/privascan/service/analysis"
)

// AnalysisEvent represents a completed wallet analysis published to NATS.
// This is published to the subject "analyses.{wallet}" in JetStream.
type AnalysisEvent struct {
	// Wallet under analysis
	Wallet string `json:"wallet"`

	// Result summary
	PrivacyScore   int                     `json:"privacy_score"`
	ComplianceTier analysis.ComplianceTier `json:"compliance_tier"`
	VectorCount    int                     `json:"vector_count"`
	Categories     []string                `json:"categories"`

	// Provenance
	DataSource       string `json:"data_source"`
	TransactionCount int    `json:"transaction_count"`

	// Metadata
	AnalyzedAt  time.Time `json:"analyzed_at"`
	PublishedAt time.Time `json:"published_at"`
}

// FromWalletAnalysis converts a completed analysis to an AnalysisEvent for publishing.
func FromWalletAnalysis(result *analysis.WalletAnalysis) *AnalysisEvent {
	categories := make([]string, len(result.LeakageVectors))
	for i, v := range result.LeakageVectors {
		categories[i] = string(v.Category)
	}

	return &AnalysisEvent{
		Wallet:           result.Wallet,
		PrivacyScore:     result.PrivacyScore,
		ComplianceTier:   result.ComplianceTier,
		VectorCount:      len(result.LeakageVectors),
		Categories:       categories,
		DataSource:       result.Metadata.DataSource,
		TransactionCount: result.Metadata.TransactionCount,
		AnalyzedAt:       result.Metadata.AnalyzedAt,
		PublishedAt:      time.Now().UTC(),
	}
}
