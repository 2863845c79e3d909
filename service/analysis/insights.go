package analysis

import "fmt"

// GenerateInsights derives qualitative surveillance statements from coarse
// thresholds on transaction volume and the computed score. Insights are
// messaging only; they are generated after scoring and never feed back into
// it, so copy changes can never alter the scoring invariant.
func GenerateInsights(transactionCount, privacyScore int) []Insight {
	var insights []Insight

	switch {
	case transactionCount == 0:
		insights = append(insights, Insight{
			Type:          "identity",
			Label:         "Unobserved Wallet",
			Description:   "No on-chain history yet. Nothing links this wallet to any physical or social identifier.",
			PrivacyImpact: "LOW",
		})
	case transactionCount > 5:
		insights = append(insights, Insight{
			Type:          "financial",
			Label:         "High Activity Profile",
			Description:   fmt.Sprintf("A window of %d recent transactions gives observers a dense behavioral sample of this wallet.", transactionCount),
			PrivacyImpact: "MEDIUM",
		})
	default:
		insights = append(insights, Insight{
			Type:          "financial",
			Label:         "Light Activity Profile",
			Description:   "Sparse transaction history limits the behavioral signal available to observers.",
			PrivacyImpact: "LOW",
		})
	}

	if privacyScore < 50 {
		insights = append(insights, Insight{
			Type:          "behavior",
			Label:         "Exposed Behavior",
			Description:   "On-chain behavior correlates strongly with identity-linked counterparties. Institutional surveillance can likely attribute this wallet.",
			PrivacyImpact: "HIGH",
		})
	} else if privacyScore >= 80 && transactionCount > 0 {
		insights = append(insights, Insight{
			Type:          "identity",
			Label:         "Low Observable Footprint",
			Description:   "Current activity patterns leave little for cluster and identity heuristics to work with.",
			PrivacyImpact: "LOW",
		})
	}

	return insights
}
