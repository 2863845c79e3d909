package analysis

import (
	"time"
)

// TransactionType classifies a normalized transaction by the programs it invoked.
type TransactionType string

const (
	TxTypeTransfer TransactionType = "transfer"
	TxTypeSwap     TransactionType = "swap"
	TxTypeNFT      TransactionType = "nft"
	TxTypeProgram  TransactionType = "program"
	TxTypeUnknown  TransactionType = "unknown"
)

// TransactionNode is one normalized on-chain transaction touching the target
// wallet. It is produced by the parser and never mutated afterwards.
type TransactionNode struct {
	Signature      string          `json:"signature"`
	Timestamp      int64           `json:"timestamp"` // unix seconds
	Slot           uint64          `json:"slot"`
	Type           TransactionType `json:"type"`
	Counterparties []string        `json:"counterparties"` // excludes the target wallet
	Programs       []string        `json:"programs"`
}

// LeakageCategory identifies which detector produced a finding.
type LeakageCategory string

const (
	CategoryCEXExposure        LeakageCategory = "CEX_EXPOSURE"
	CategoryAddressReuse       LeakageCategory = "ADDRESS_REUSE"
	CategoryClusteringRisk     LeakageCategory = "CLUSTERING_RISK"
	CategoryTemporalPattern    LeakageCategory = "TEMPORAL_PATTERN"
	CategorySocialGraph        LeakageCategory = "SOCIAL_GRAPH"
	CategoryBridgeCorrelation  LeakageCategory = "BRIDGE_CORRELATION"
	CategoryMixerCorrelation   LeakageCategory = "MIXER_CORRELATION"
	CategoryLabeledInteraction LeakageCategory = "LABELED_INTERACTION"
	CategoryNFTIdentity        LeakageCategory = "NFT_IDENTITY"
)

// Severity grades a leakage finding.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Evidence is one supporting datum for a leakage vector.
type Evidence struct {
	Type       string  `json:"type"` // "transaction" or "address"
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"` // [0,1]
	Timestamp  int64   `json:"timestamp,omitempty"` // unix seconds, 0 if not applicable
}

// LeakageVector is a single detector's finding. Each detector emits at most
// one vector per analysis, so categories are unique within a result.
type LeakageVector struct {
	Category    LeakageCategory `json:"category"`
	Severity    Severity        `json:"severity"`
	Score       float64         `json:"score"` // 0-100, detector-local intensity
	Description string          `json:"description"`
	Evidence    []Evidence      `json:"evidence"`
}

// ComplianceTier is the coarse institutional risk bucket.
type ComplianceTier string

const (
	TierLowRisk    ComplianceTier = "LOW_RISK"
	TierMediumRisk ComplianceTier = "MEDIUM_RISK"
	TierHighRisk   ComplianceTier = "HIGH_RISK"
	TierNewWallet  ComplianceTier = "NEW_WALLET"
)

// Priority ranks a recommendation.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// Recommendation is one remediation suggestion derived from the set of
// detected leakage categories.
type Recommendation struct {
	Priority             Priority `json:"priority"`
	Category             string   `json:"category"`
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	Actionable           bool     `json:"actionable"`
	EstimatedImprovement int      `json:"estimatedImprovement"`
}

// Insight is a qualitative, user-facing statement about the wallet's
// surveillance exposure. Insights are presentation aids and never feed back
// into the privacy score.
type Insight struct {
	Type          string `json:"type"` // "identity", "financial", "behavior"
	Label         string `json:"label"`
	Description   string `json:"description"`
	PrivacyImpact string `json:"privacyImpact"` // LOW, MEDIUM, HIGH
}

// Data source provenance tags for analysis metadata.
const (
	DataSourceRPC       = "rpc"
	DataSourceSynthetic = "synthetic-fallback"
)

// Metadata describes how and when an analysis was produced.
type Metadata struct {
	AnalyzedAt       time.Time         `json:"analyzedAt"`
	TransactionCount int               `json:"transactionCount"`
	AccountAge       time.Duration     `json:"accountAge"` // since oldest observed transaction
	DataSource       string            `json:"dataSource"`
	ProcessingTime   time.Duration     `json:"processingTime"`
	Transactions     []TransactionNode `json:"transactions,omitempty"` // retained for visualization
}

// WalletAnalysis is the complete result for one address at one point in time.
// It is immutable once assembled; cache eviction always yields a fresh instance.
type WalletAnalysis struct {
	Wallet          string           `json:"wallet"`
	PrivacyScore    int              `json:"privacyScore"` // 0-100, higher is more private
	ComplianceTier  ComplianceTier   `json:"complianceTier"`
	LeakageVectors  []LeakageVector  `json:"leakageVectors"`
	Insights        []Insight        `json:"surveillanceInsights"`
	Recommendations []Recommendation `json:"recommendations"`
	Metadata        Metadata         `json:"metadata"`
}
