package quality

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pimworks/golden-cli/internal/model"
)

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-0.5))
	assert.Equal(t, 0.0, Clamp01(0))
	assert.Equal(t, 0.5, Clamp01(0.5))
	assert.Equal(t, 1.0, Clamp01(1))
	assert.Equal(t, 1.0, Clamp01(1.7))
	assert.Equal(t, 0.0, Clamp01(math.NaN()))
	assert.Equal(t, 0.0, Clamp01(math.Inf(1)))
	assert.Equal(t, 0.0, Clamp01(math.Inf(-1)))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, Percent(0))
	assert.Equal(t, 50, Percent(0.5))
	assert.Equal(t, 87, Percent(0.874))
	assert.Equal(t, 88, Percent(0.875))
	assert.Equal(t, 100, Percent(1))
	assert.Equal(t, 100, Percent(2.3))
	assert.Equal(t, 0, Percent(-1))
}

func TestPercentIdempotentUnderClamp(t *testing.T) {
	for _, x := range []float64{-2, 0, 0.33, 0.874, 1, 5, math.NaN()} {
		once := Percent(x)
		again := Percent(Clamp01(x))
		assert.Equal(t, once, again)
	}
}

func TestToPercentsNil(t *testing.T) {
	assert.Nil(t, ToPercents(nil))
}

func TestToPercents(t *testing.T) {
	p := ToPercents(&model.QualityBreakdown{
		Completeness: 0.5,
		Accuracy:     0.874,
		Consistency:  1,
		SourceWeight: 0,
	})
	require.NotNil(t, p)
	assert.Equal(t, 50, p.Completeness)
	assert.Equal(t, 87, p.Accuracy)
	assert.Equal(t, 100, p.Consistency)
	assert.Equal(t, 0, p.SourceWeight)
}

func TestScoreWeightedAggregate(t *testing.T) {
	b := model.QualityBreakdown{
		Completeness: 1,
		Accuracy:     0.5,
		Consistency:  1,
		SourceWeight: 0,
	}
	// 0.3*1 + 0.3*0.5 + 0.2*1 + 0.2*0 = 0.65
	assert.InDelta(t, 0.65, Score(b, DefaultWeights()), 1e-9)
}

func TestScoreClamped(t *testing.T) {
	b := model.QualityBreakdown{Completeness: 1, Accuracy: 1, Consistency: 1, SourceWeight: 1}
	heavy := Weights{Completeness: 1, Accuracy: 1, Consistency: 1, SourceWeight: 1}
	assert.Equal(t, 1.0, Score(b, heavy))
}

func TestComputeBreakdown(t *testing.T) {
	specs := map[string]any{"brand": "Acme", "category": "tools"}
	votes := map[string][]model.ConsensusVote{
		"brand": {
			{Value: "Acme", SourceName: "a", TrustScore: 0.9, SimilarityScore: 1},
			{Value: "Acme", SourceName: "b", TrustScore: 0.7, SimilarityScore: 1},
		},
		"category": {
			{Value: "tools", SourceName: "a", TrustScore: 0.9, SimilarityScore: 1},
			{Value: "hardware", SourceName: "b", TrustScore: 0.7, SimilarityScore: 1},
		},
	}

	b := ComputeBreakdown(specs, votes, []string{"brand", "category", "gtin", "mpn"})

	// 2 of 4 required fields present
	assert.InDelta(t, 0.5, b.Completeness, 1e-9)
	// mean vote weight: (0.9+0.7+0.9+0.7)/4
	assert.InDelta(t, 0.8, b.Accuracy, 1e-9)
	// one of two attributes disagrees
	assert.InDelta(t, 0.5, b.Consistency, 1e-9)
	// mean trust
	assert.InDelta(t, 0.8, b.SourceWeight, 1e-9)
}

func TestComputeBreakdownNoRequiredFields(t *testing.T) {
	b := ComputeBreakdown(nil, nil, nil)
	assert.Equal(t, 1.0, b.Completeness)
	assert.Equal(t, 0.0, b.Accuracy)
	assert.Equal(t, 1.0, b.Consistency)
	assert.Equal(t, 0.0, b.SourceWeight)
}

func TestComputeBreakdownFieldMatchingIsCaseInsensitive(t *testing.T) {
	specs := map[string]any{"Brand": "Acme"}
	b := ComputeBreakdown(specs, nil, []string{"brand"})
	assert.Equal(t, 1.0, b.Completeness)
}
