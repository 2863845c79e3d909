package analysis

// DetermineComplianceTier maps a score, its vectors, and the transaction
// count to a coarse risk tier. Decision order matters: the first matching
// rule wins.
func DetermineComplianceTier(privacyScore int, vectors []LeakageVector, transactionCount int) ComplianceTier {
	if transactionCount == 0 {
		return TierNewWallet
	}

	hasCritical := false
	hasHighBridge := false
	hasHighCEX := false
	hasHigh := false
	for _, v := range vectors {
		switch v.Severity {
		case SeverityCritical:
			hasCritical = true
		case SeverityHigh:
			hasHigh = true
			if v.Category == CategoryBridgeCorrelation {
				hasHighBridge = true
			}
			if v.Category == CategoryCEXExposure {
				hasHighCEX = true
			}
		}
	}

	// Critical violations or high-confidence bridge/CEX links with low
	// privacy escalate straight to HIGH_RISK.
	if hasCritical || hasHighBridge || (privacyScore < 30 && hasHighCEX) {
		return TierHighRisk
	}

	// LOW_RISK requires a strong score and no high-severity leakage.
	if privacyScore >= 80 && !hasHigh {
		return TierLowRisk
	}

	return TierMediumRisk
}
