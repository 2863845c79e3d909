package analysis

import "sort"

// recommendationTemplate pairs a leakage category with its static remediation
// copy. Templates are fixed per category: priority and estimated improvement
// never vary with severity or hit counts, and the improvement figures are
// illustrative rather than derived from the scorer's weights.
type recommendationTemplate struct {
	category       LeakageCategory
	recommendation Recommendation
}

// recommendationTemplates is checked in registration order; ties in priority
// preserve this order in the output.
var recommendationTemplates = []recommendationTemplate{
	{CategoryCEXExposure, Recommendation{
		Priority:             PriorityHigh,
		Category:             "Privacy",
		Title:                "Hide your exchange links",
		Description:          "Your wallet is directly connected to a central exchange. This means your real-world identity is potentially compromised. Use a \"cleaning\" wallet in between.",
		Actionable:           true,
		EstimatedImprovement: 25,
	}},
	{CategoryAddressReuse, Recommendation{
		Priority:             PriorityMedium,
		Category:             "Anonymity",
		Title:                "Don't use the same wallet twice",
		Description:          "Using one wallet for everything (NFTs, trading, shopping) makes it easy to build a profile of your life. Create a fresh wallet for new activities.",
		Actionable:           true,
		EstimatedImprovement: 15,
	}},
	{CategoryTemporalPattern, Recommendation{
		Priority:             PriorityLow,
		Category:             "Behavior",
		Title:                "Mix up your timing",
		Description:          "Sending money at the exact same time every day is a \"digital fingerprint\". Randomize your transaction times to stay under the radar.",
		Actionable:           true,
		EstimatedImprovement: 10,
	}},
	{CategoryClusteringRisk, Recommendation{
		Priority:             PriorityMedium,
		Category:             "Anonymity",
		Title:                "Untangle your addresses",
		Description:          "Your different wallets are \"talking\" to each other too much. This creates a cluster that reveals they all belong to you.",
		Actionable:           true,
		EstimatedImprovement: 20,
	}},
	{CategorySocialGraph, Recommendation{
		Priority:             PriorityLow,
		Category:             "Privacy",
		Title:                "Hide your friend graph",
		Description:          "Directly sending SOL to the same people over and over reveals your social circle. Use a temporary wallet for personal transfers.",
		Actionable:           true,
		EstimatedImprovement: 10,
	}},
	{CategoryMixerCorrelation, Recommendation{
		Priority:             PriorityHigh,
		Category:             "Privacy",
		Title:                "Add delays between transfers",
		Description:          "You are moving money too quickly through privacy tools. This creates a \"time link\" that makes the tool useless. Wait at least 24 hours between deposit and withdrawal.",
		Actionable:           true,
		EstimatedImprovement: 40,
	}},
	{CategoryBridgeCorrelation, Recommendation{
		Priority:             PriorityHigh,
		Category:             "Cross-Chain",
		Title:                "Watch out for bridge leaks",
		Description:          "Moving money between blockchains is highly trackable. Use specialized tools that hide these crossover links.",
		Actionable:           true,
		EstimatedImprovement: 30,
	}},
}

// fallbackRecommendation is emitted when no leakage category matched.
var fallbackRecommendation = Recommendation{
	Priority:             PriorityLow,
	Category:             "Anonymity",
	Title:                "Maintain hygiene",
	Description:          "No significant leakage detected. Continue rotating addresses for new activities to maintain this level of privacy.",
	Actionable:           true,
	EstimatedImprovement: 5,
}

var priorityRank = map[Priority]int{
	PriorityHigh:   3,
	PriorityMedium: 2,
	PriorityLow:    1,
}

// GenerateRecommendations maps the set of detected leakage categories to a
// ranked remediation list. Only category presence matters; counts and
// severities do not change the output.
func GenerateRecommendations(vectors []LeakageVector) []Recommendation {
	present := make(map[LeakageCategory]struct{}, len(vectors))
	for _, v := range vectors {
		present[v.Category] = struct{}{}
	}

	var recommendations []Recommendation
	for _, tmpl := range recommendationTemplates {
		if _, ok := present[tmpl.category]; ok {
			recommendations = append(recommendations, tmpl.recommendation)
		}
	}

	if len(recommendations) == 0 {
		return []Recommendation{fallbackRecommendation}
	}

	sort.SliceStable(recommendations, func(i, j int) bool {
		return priorityRank[recommendations[i].Priority] > priorityRank[recommendations[j].Priority]
	})

	return recommendations
}
