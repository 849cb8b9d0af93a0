package triage

import (
	"github.com/pimworks/golden-cli/internal/model"
)

// ScoreBreakdown is the per-signal similarity breakdown stored by the
// matching pipeline, when present.
type ScoreBreakdown struct {
	GTINMatch       *float64 `json:"gtinMatch,omitempty"`
	TitleSimilarity *float64 `json:"titleSimilarity,omitempty"`
	BrandMatch      *float64 `json:"brandMatch,omitempty"`
	PriceProximity  *float64 `json:"priceProximity,omitempty"`
}

// AIAuditResult is the stored outcome of an AI audit pass over a match.
type AIAuditResult struct {
	Decision   string
	Confidence float64
	Reasoning  string
	AuditedAt  string
	ModelUsed  string
}

// GetScoreBreakdown extracts the scores_breakdown block from match details.
// Returns nil when absent or when no recognized field is numeric.
func GetScoreBreakdown(m *model.SimilarityMatch) *ScoreBreakdown {
	raw, ok := m.Details()["scores_breakdown"].(map[string]any)
	if !ok {
		return nil
	}
	var b ScoreBreakdown
	b.GTINMatch = floatField(raw, "gtinMatch")
	b.TitleSimilarity = floatField(raw, "titleSimilarity")
	b.BrandMatch = floatField(raw, "brandMatch")
	b.PriceProximity = floatField(raw, "priceProximity")
	if b.GTINMatch == nil && b.TitleSimilarity == nil && b.BrandMatch == nil && b.PriceProximity == nil {
		return nil
	}
	return &b
}

// GetAIAuditResult extracts the ai_audit_result block, or nil when absent.
func GetAIAuditResult(m *model.SimilarityMatch) *AIAuditResult {
	raw, ok := m.Details()["ai_audit_result"].(map[string]any)
	if !ok {
		return nil
	}
	res := &AIAuditResult{
		Decision:  stringField(raw, "decision"),
		Reasoning: stringField(raw, "reasoning"),
		AuditedAt: stringField(raw, "auditedAt"),
		ModelUsed: stringField(raw, "modelUsed"),
	}
	if conf := floatField(raw, "confidence"); conf != nil {
		res.Confidence = *conf
	}
	return res
}

// HasAIAudit reports whether an AI audit result is stored on the match.
func HasAIAudit(m *model.SimilarityMatch) bool {
	return GetAIAuditResult(m) != nil
}

// RequiresHumanReview reports whether the match needs a human decision,
// either via an explicit flag or the hitl_required triage tier.
func RequiresHumanReview(m *model.SimilarityMatch) bool {
	if flag, ok := m.Details()["requires_human_review"].(bool); ok && flag {
		return true
	}
	d := Classify(m)
	return d.Known() && d.Tier == model.TriageHITLRequired
}

func floatField(raw map[string]any, key string) *float64 {
	if v, ok := raw[key].(float64); ok {
		return &v
	}
	return nil
}

func stringField(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return s
}
