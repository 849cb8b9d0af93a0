// Package quality turns consensus output into quality scores and promotion
// tiers.
package quality

import (
	"math"

	"github.com/pimworks/golden-cli/internal/consensus"
	"github.com/pimworks/golden-cli/internal/model"
)

// Clamp01 pins a value to [0,1]. NaN and infinities collapse to 0.
func Clamp01(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return math.Min(math.Max(x, 0), 1)
}

// Percent converts a 0–1 score to a rounded integer percentage. Out-of-range
// inputs are clamped, never rejected. Idempotent under repeated application:
// Percent already operates on the clamped value.
func Percent(x float64) int {
	return int(math.Round(Clamp01(x) * 100))
}

// BreakdownPercents is the display form of a quality breakdown.
type BreakdownPercents struct {
	Completeness int `json:"completeness"`
	Accuracy     int `json:"accuracy"`
	Consistency  int `json:"consistency"`
	SourceWeight int `json:"sourceWeight"`
}

// ToPercents formats a breakdown for display. A nil breakdown returns nil —
// absence of data is a neutral state, not a zero score.
func ToPercents(b *model.QualityBreakdown) *BreakdownPercents {
	if b == nil {
		return nil
	}
	return &BreakdownPercents{
		Completeness: Percent(b.Completeness),
		Accuracy:     Percent(b.Accuracy),
		Consistency:  Percent(b.Consistency),
		SourceWeight: Percent(b.SourceWeight),
	}
}

// Weights are the aggregation weights for the four sub-scores.
type Weights struct {
	Completeness float64 `yaml:"completeness" mapstructure:"completeness"`
	Accuracy     float64 `yaml:"accuracy" mapstructure:"accuracy"`
	Consistency  float64 `yaml:"consistency" mapstructure:"consistency"`
	SourceWeight float64 `yaml:"source_weight" mapstructure:"source_weight"`
}

// DefaultWeights returns the standard aggregation weights.
func DefaultWeights() Weights {
	return Weights{
		Completeness: 0.3,
		Accuracy:     0.3,
		Consistency:  0.2,
		SourceWeight: 0.2,
	}
}

// Score aggregates a breakdown into one quality score, clamped to [0,1].
func Score(b model.QualityBreakdown, w Weights) float64 {
	return Clamp01(
		w.Completeness*b.Completeness +
			w.Accuracy*b.Accuracy +
			w.Consistency*b.Consistency +
			w.SourceWeight*b.SourceWeight,
	)
}

// ComputeBreakdown derives the four sub-scores from an attribute vote pool.
//
// Completeness is the fraction of required fields present among the fused
// specs (1 when nothing is required). Consistency penalizes attributes whose
// votes disagree. SourceWeight is the mean trust score over all votes.
// Accuracy is the mean per-vote weight (trust × similarity), the closest
// observable proxy for claim correctness without ground truth.
func ComputeBreakdown(specs map[string]any, votesByAttribute map[string][]model.ConsensusVote, requiredFields []string) model.QualityBreakdown {
	specKeys := make(map[string]struct{}, len(specs))
	for key := range specs {
		specKeys[consensus.ValueKey(key)] = struct{}{}
	}

	completeness := 1.0
	if len(requiredFields) > 0 {
		present := 0
		for _, field := range requiredFields {
			if _, ok := specKeys[consensus.ValueKey(field)]; ok {
				present++
			}
		}
		completeness = float64(present) / float64(len(requiredFields))
	}

	var weightSum, trustSum float64
	var voteCount, conflictCount int
	for _, votes := range votesByAttribute {
		distinct := make(map[string]struct{}, len(votes))
		for _, v := range votes {
			distinct[consensus.ValueKey(v.Value)] = struct{}{}
			weightSum += consensus.Weight(v)
			trustSum += v.TrustScore
			voteCount++
		}
		if len(distinct) > 1 {
			conflictCount++
		}
	}

	accuracy := 0.0
	sourceWeight := 0.0
	if voteCount > 0 {
		accuracy = weightSum / float64(voteCount)
		sourceWeight = trustSum / float64(voteCount)
	}

	consistency := 1.0
	if len(votesByAttribute) > 0 {
		consistency = 1 - math.Min(float64(conflictCount)/float64(len(votesByAttribute)), 1)
	}

	return model.QualityBreakdown{
		Completeness: Clamp01(completeness),
		Accuracy:     Clamp01(accuracy),
		Consistency:  Clamp01(consistency),
		SourceWeight: Clamp01(sourceWeight),
	}
}
