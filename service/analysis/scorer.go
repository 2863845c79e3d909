package analysis

import "math"

// categoryWeights is the maximum penalty each leakage category can subtract
// from a perfect score. Vector scores scale the weight linearly.
var categoryWeights = map[LeakageCategory]float64{
	CategoryCEXExposure:        30,
	CategoryLabeledInteraction: 25,
	CategoryMixerCorrelation:   25,
	CategoryClusteringRisk:     20,
	CategoryBridgeCorrelation:  20,
	CategoryTemporalPattern:    15,
	CategoryAddressReuse:       15,
	CategorySocialGraph:        15,
	CategoryNFTIdentity:        10,
}

// defaultCategoryWeight applies to categories without an explicit weight.
const defaultCategoryWeight = 10

// CalculatePrivacyScore aggregates leakage vectors into a single 0-100 score.
// The score starts at 100 and only ever decreases as penalties accumulate:
// penalty = (vector score / 100) * category weight.
func CalculatePrivacyScore(vectors []LeakageVector) int {
	if len(vectors) == 0 {
		return 100
	}

	totalPenalty := 0.0
	for _, v := range vectors {
		weight, ok := categoryWeights[v.Category]
		if !ok {
			weight = defaultCategoryWeight
		}
		totalPenalty += (v.Score / 100) * weight
	}

	return int(math.Max(0, math.Min(100, 100-totalPenalty)))
}
