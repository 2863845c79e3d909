package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Detector scans the full normalized transaction set and emits at most one
// finding. Detectors are independent pure functions: they all see the same
// unmodified input, and adding one never touches the others.
type Detector func(transactions []TransactionNode) *LeakageVector

// Classifier runs a fixed battery of leakage detectors against a wallet's
// transaction history.
type Classifier struct {
	known     *KnownAddresses
	detectors []Detector
}

// NewClassifier builds a classifier over the given reference tables.
// Pass nil to use the built-in labeled address snapshot.
func NewClassifier(known *KnownAddresses) *Classifier {
	if known == nil {
		known = DefaultKnownAddresses()
	}
	c := &Classifier{known: known}
	c.detectors = []Detector{
		c.detectCEXExposure,
		c.detectAddressReuse,
		c.detectTemporalPattern,
		c.detectClusteringRisk,
		c.detectSocialGraph,
		c.detectBridgeCorrelation,
		c.detectMixerCorrelation,
	}
	return c
}

// Classify returns the non-nil findings from the detector battery.
// Detector order does not affect correctness; it only fixes output ordering.
func (c *Classifier) Classify(transactions []TransactionNode) []LeakageVector {
	vectors := make([]LeakageVector, 0, len(c.detectors))
	for _, detect := range c.detectors {
		if v := detect(transactions); v != nil {
			vectors = append(vectors, *v)
		}
	}
	return vectors
}

// detectCEXExposure flags direct interactions with labeled exchange wallets.
// Exchange deposits are KYC-linked, so each hit is a hard identity anchor.
func (c *Classifier) detectCEXExposure(transactions []TransactionNode) *LeakageVector {
	var hits []TransactionNode
	for _, tx := range transactions {
		if c.anyCounterparty(tx, c.known.IsExchange) {
			hits = append(hits, tx)
		}
	}
	if len(hits) == 0 {
		return nil
	}

	score := math.Min(100, float64(len(hits))*20)
	severity := SeverityMedium
	switch {
	case score > 80:
		severity = SeverityCritical
	case score > 50:
		severity = SeverityHigh
	}

	return &LeakageVector{
		Category:    CategoryCEXExposure,
		Severity:    severity,
		Score:       score,
		Description: fmt.Sprintf("Detected %d direct interactions with known exchange addresses.", len(hits)),
		Evidence:    transactionEvidence(hits, 1.0),
	}
}

// detectAddressReuse flags counterparties that recur across more than three
// distinct transactions.
func (c *Classifier) detectAddressReuse(transactions []TransactionNode) *LeakageVector {
	freq := counterpartyFrequency(transactions, nil)

	var reused []string
	for addr, count := range freq {
		if count > 3 {
			reused = append(reused, addr)
		}
	}
	if len(reused) == 0 {
		return nil
	}
	sort.Strings(reused) // deterministic evidence ordering

	score := math.Min(100, float64(len(reused))*15)
	severity := SeverityMedium
	if score > 60 {
		severity = SeverityHigh
	}

	return &LeakageVector{
		Category:    CategoryAddressReuse,
		Severity:    severity,
		Score:       score,
		Description: fmt.Sprintf("Detected %d addresses used in recurrent transactions.", len(reused)),
		Evidence:    addressEvidence(reused, 0.8),
	}
}

// detectTemporalPattern flags near-regular transaction intervals. A low
// coefficient of variation means the wallet transacts on a schedule, which is
// a strong behavioral fingerprint.
func (c *Classifier) detectTemporalPattern(transactions []TransactionNode) *LeakageVector {
	if len(transactions) < 5 {
		return nil
	}

	intervals := sortedIntervals(transactions)
	mean := 0.0
	for _, iv := range intervals {
		mean += iv
	}
	mean /= float64(len(intervals))
	if mean == 0 {
		return nil
	}

	variance := 0.0
	for _, iv := range intervals {
		variance += (iv - mean) * (iv - mean)
	}
	variance /= float64(len(intervals))
	cv := math.Sqrt(variance) / mean

	if cv >= 0.6 {
		return nil
	}

	return &LeakageVector{
		Category:    CategoryTemporalPattern,
		Severity:    SeverityMedium,
		Score:       math.Min(100, (1-cv)*80),
		Description: "Predictable transaction intervals detected, indicating potential automated or non-random behavior.",
		Evidence:    []Evidence{},
	}
}

// detectClusteringRisk flags a spread of distinct non-exchange counterparties.
// Many personal addresses linked to one wallet make cluster heuristics easy.
func (c *Classifier) detectClusteringRisk(transactions []TransactionNode) *LeakageVector {
	distinct := make(map[string]struct{})
	for _, tx := range transactions {
		for _, addr := range tx.Counterparties {
			if !c.known.IsExchange(addr) {
				distinct[addr] = struct{}{}
			}
		}
	}
	if len(distinct) < 3 {
		return nil
	}

	addrs := make([]string, 0, len(distinct))
	for addr := range distinct {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	if len(addrs) > 5 {
		addrs = addrs[:5]
	}

	score := math.Min(100, float64(len(distinct))*10)
	severity := SeverityMedium
	if score > 70 {
		severity = SeverityHigh
	}

	return &LeakageVector{
		Category:    CategoryClusteringRisk,
		Severity:    severity,
		Score:       score,
		Description: fmt.Sprintf("Identified %d unique personal addresses linked to this wallet, increasing clustering risk.", len(distinct)),
		Evidence:    addressEvidence(addrs, 0.7),
	}
}

// detectSocialGraph flags non-exchange counterparties seen in more than ten
// transactions. Repeated personal transfers reveal social circles.
func (c *Classifier) detectSocialGraph(transactions []TransactionNode) *LeakageVector {
	freq := counterpartyFrequency(transactions, c.known.IsExchange)

	var links []string
	for addr, count := range freq {
		if count > 10 {
			links = append(links, addr)
		}
	}
	if len(links) == 0 {
		return nil
	}
	sort.Strings(links)

	return &LeakageVector{
		Category:    CategorySocialGraph,
		Severity:    SeverityMedium,
		Score:       math.Min(100, float64(len(links))*30),
		Description: fmt.Sprintf("Strong social graph links detected with %d addresses. Repeated interactions with personal wallets reveal social clusters.", len(links)),
		Evidence:    addressEvidence(links, 0.9),
	}
}

// detectBridgeCorrelation flags cross-chain bridge usage. Bridge interaction
// patterns are fingerprintable across chains.
func (c *Classifier) detectBridgeCorrelation(transactions []TransactionNode) *LeakageVector {
	var hits []TransactionNode
	for _, tx := range transactions {
		if c.anyCounterparty(tx, c.known.IsBridge) || c.anyProgram(tx, c.known.IsBridge) {
			hits = append(hits, tx)
		}
	}
	if len(hits) == 0 {
		return nil
	}

	score := math.Min(100, float64(len(hits))*25)
	severity := SeverityMedium
	if score > 75 {
		severity = SeverityHigh
	}

	return &LeakageVector{
		Category:    CategoryBridgeCorrelation,
		Severity:    severity,
		Score:       score,
		Description: fmt.Sprintf("Detected %d interactions with cross-chain bridges. Chain-hopping behavior often indicates an attempt to obscure financial trails.", len(hits)),
		Evidence:    transactionEvidence(hits, 1.0),
	}
}

// detectMixerCorrelation flags mixer usage combined with short deposit-
// withdraw gaps. At least one keyword hit is required before the short-gap
// arithmetic can contribute; timing alone never produces a finding.
func (c *Classifier) detectMixerCorrelation(transactions []TransactionNode) *LeakageVector {
	matches := func(id string) bool {
		lower := strings.ToLower(id)
		for _, kw := range c.known.MixerKeywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
		return false
	}

	var hits []TransactionNode
	for _, tx := range transactions {
		if c.anyProgram(tx, matches) || c.anyCounterparty(tx, matches) {
			hits = append(hits, tx)
		}
	}
	if len(hits) == 0 {
		return nil
	}

	shortGaps := 0
	for _, iv := range sortedIntervals(transactions) {
		if iv < 600 {
			shortGaps++
		}
	}

	score := math.Min(100, float64(len(hits))*20+float64(shortGaps)*10)
	severity := SeverityHigh
	if score > 70 {
		severity = SeverityCritical
	}

	return &LeakageVector{
		Category:    CategoryMixerCorrelation,
		Severity:    severity,
		Score:       score,
		Description: fmt.Sprintf("Improper use of privacy protocols detected. Short time delays (%d instances) between transactions make it easy to link identities to private outputs.", shortGaps),
		Evidence:    transactionEvidence(hits, 0.9),
	}
}

func (c *Classifier) anyCounterparty(tx TransactionNode, match func(string) bool) bool {
	for _, addr := range tx.Counterparties {
		if match(addr) {
			return true
		}
	}
	return false
}

func (c *Classifier) anyProgram(tx TransactionNode, match func(string) bool) bool {
	for _, p := range tx.Programs {
		if match(p) {
			return true
		}
	}
	return false
}

// counterpartyFrequency counts distinct transaction appearances per
// counterparty, optionally excluding addresses that match exclude.
func counterpartyFrequency(transactions []TransactionNode, exclude func(string) bool) map[string]int {
	freq := make(map[string]int)
	for _, tx := range transactions {
		for _, addr := range tx.Counterparties {
			if exclude != nil && exclude(addr) {
				continue
			}
			freq[addr]++
		}
	}
	return freq
}

// sortedIntervals returns the gaps in seconds between consecutive
// transactions, timestamps sorted ascending.
func sortedIntervals(transactions []TransactionNode) []float64 {
	timestamps := make([]int64, len(transactions))
	for i, tx := range transactions {
		timestamps[i] = tx.Timestamp
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })

	intervals := make([]float64, 0, len(timestamps))
	for i := 1; i < len(timestamps); i++ {
		intervals = append(intervals, float64(timestamps[i]-timestamps[i-1]))
	}
	return intervals
}

func transactionEvidence(txs []TransactionNode, confidence float64) []Evidence {
	evidence := make([]Evidence, len(txs))
	for i, tx := range txs {
		evidence[i] = Evidence{
			Type:       "transaction",
			Value:      tx.Signature,
			Confidence: confidence,
			Timestamp:  tx.Timestamp,
		}
	}
	return evidence
}

func addressEvidence(addrs []string, confidence float64) []Evidence {
	evidence := make([]Evidence, len(addrs))
	for i, addr := range addrs {
		evidence[i] = Evidence{
			Type:       "address",
			Value:      addr,
			Confidence: confidence,
		}
	}
	return evidence
}
