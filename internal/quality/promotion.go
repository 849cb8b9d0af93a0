package quality

import (
	"fmt"

	"github.com/pimworks/golden-cli/internal/model"
)

// LevelRequirements gate promotion into one level.
type LevelRequirements struct {
	MinScore       float64  `yaml:"min_score" mapstructure:"min_score"`
	MinSources     int      `yaml:"min_sources" mapstructure:"min_sources"`
	RequiredFields []string `yaml:"required_fields" mapstructure:"required_fields"`
	MinSpecs       int      `yaml:"min_specs" mapstructure:"min_specs"`
}

// Thresholds hold the configurable promotion gates for silver and golden.
type Thresholds struct {
	Silver LevelRequirements `yaml:"silver" mapstructure:"silver"`
	Golden LevelRequirements `yaml:"golden" mapstructure:"golden"`
}

// DefaultThresholds returns the standard promotion gates.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Silver: LevelRequirements{
			MinScore:       0.6,
			MinSources:     2,
			RequiredFields: []string{"brand", "category"},
		},
		Golden: LevelRequirements{
			MinScore:       0.85,
			MinSources:     3,
			RequiredFields: []string{"gtin", "brand", "mpn", "category"},
			MinSpecs:       5,
		},
	}
}

// GoldenMilestones are catalog-wide golden-record counts worth an event.
var GoldenMilestones = []int64{100, 1000, 10000}

// MilestoneReached reports whether a golden-record count is a milestone.
func MilestoneReached(count int64) bool {
	for _, m := range GoldenMilestones {
		if count == m {
			return true
		}
	}
	return false
}

// Context is the product state a promotion decision is evaluated against.
// Score is nil when no quality score has been computed yet; absence is
// treated as not-yet-scored, not as zero.
type Context struct {
	CurrentLevel model.QualityLevel
	Score        *float64
	SourceCount  int
	Specs        map[string]any
}

// Evaluation is the promotion verdict for a product.
type Evaluation struct {
	CurrentLevel  model.QualityLevel `json:"currentLevel"`
	Eligible      bool               `json:"eligibleForPromotion"`
	NextLevel     model.QualityLevel `json:"nextLevel,omitempty"`
	NextThreshold *float64           `json:"nextThreshold,omitempty"`
	Missing       []string           `json:"missingRequirements"`
}

// Demotion is the downgrade verdict for a product. History (promotion
// timestamps) is never erased by a demotion; only the current level moves.
type Demotion struct {
	ShouldDemote bool
	TargetLevel  model.QualityLevel
}

func scoreOf(ctx Context) float64 {
	if ctx.Score == nil {
		return 0
	}
	return Clamp01(*ctx.Score)
}

func missingFields(specs map[string]any, fields []string) []string {
	var missing []string
	for _, field := range fields {
		v, ok := specs[field]
		if !ok || v == nil || v == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

func meets(ctx Context, req LevelRequirements) bool {
	if scoreOf(ctx) < req.MinScore {
		return false
	}
	if ctx.SourceCount < req.MinSources {
		return false
	}
	if len(missingFields(ctx.Specs, req.RequiredFields)) > 0 {
		return false
	}
	return len(ctx.Specs) >= req.MinSpecs
}

// Evaluate determines the next promotion step for a product. A product in
// review_needed never promotes until the review flag clears. Eligibility
// requires both the score threshold and an empty missing-requirements list.
func Evaluate(ctx Context, th Thresholds) Evaluation {
	eval := Evaluation{CurrentLevel: ctx.CurrentLevel, Missing: []string{}}

	if ctx.CurrentLevel == model.QualityReviewNeeded {
		eval.Missing = append(eval.Missing, "Product flagged for review")
		return eval
	}
	if ctx.CurrentLevel == model.QualityGolden {
		return eval
	}

	var req LevelRequirements
	var next model.QualityLevel
	if ctx.CurrentLevel == model.QualitySilver {
		req, next = th.Golden, model.QualityGolden
	} else {
		req, next = th.Silver, model.QualitySilver
	}

	eval.NextLevel = next
	threshold := req.MinScore
	eval.NextThreshold = &threshold
	eval.Missing = requirementGaps(ctx, req, next)
	eval.Eligible = len(eval.Missing) == 0
	return eval
}

func requirementGaps(ctx Context, req LevelRequirements, target model.QualityLevel) []string {
	missing := []string{}
	score := scoreOf(ctx)
	if ctx.Score == nil {
		missing = append(missing, fmt.Sprintf("No quality score yet (%.2f required for %s)", req.MinScore, target))
	} else if score < req.MinScore {
		missing = append(missing, fmt.Sprintf("Quality score %.2f < %.2f required for %s", score, req.MinScore, target))
	}
	if ctx.SourceCount < req.MinSources {
		missing = append(missing, fmt.Sprintf("Sources: %d/%d required for %s", ctx.SourceCount, req.MinSources, target))
	}
	for _, field := range missingFields(ctx.Specs, req.RequiredFields) {
		missing = append(missing, fmt.Sprintf("Missing field: %s", field))
	}
	if len(ctx.Specs) < req.MinSpecs {
		missing = append(missing, fmt.Sprintf("Specs: %d/%d required for %s", len(ctx.Specs), req.MinSpecs, target))
	}
	return missing
}

// EvaluateDemotion checks whether the product still qualifies for its
// current level and picks the highest level it does qualify for.
func EvaluateDemotion(ctx Context, th Thresholds) Demotion {
	switch ctx.CurrentLevel {
	case model.QualityGolden:
		if meets(ctx, th.Golden) {
			return Demotion{TargetLevel: model.QualityGolden}
		}
		if meets(ctx, th.Silver) {
			return Demotion{ShouldDemote: true, TargetLevel: model.QualitySilver}
		}
		return Demotion{ShouldDemote: true, TargetLevel: model.QualityBronze}
	case model.QualitySilver:
		if meets(ctx, th.Silver) {
			return Demotion{TargetLevel: model.QualitySilver}
		}
		return Demotion{ShouldDemote: true, TargetLevel: model.QualityBronze}
	default:
		return Demotion{TargetLevel: ctx.CurrentLevel}
	}
}
