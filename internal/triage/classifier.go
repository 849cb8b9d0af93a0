// Package triage assigns automation tiers to similarity matches.
package triage

import (
	"github.com/pimworks/golden-cli/internal/model"
)

// Similarity thresholds for the four triage bands. Boundary values belong to
// the higher band.
const (
	AutoApproveThreshold = 0.98
	AIAuditThreshold     = 0.94
	HITLThreshold        = 0.90
)

// DecisionSource says where a decision came from.
type DecisionSource int

const (
	// DecisionUnknown means the match could not be classified (no stored
	// decision and an unparseable score). Callers must route these to
	// manual handling.
	DecisionUnknown DecisionSource = iota
	// DecisionStored means an upstream process or human already recorded a
	// decision in the match details; it is returned unchanged.
	DecisionStored
	// DecisionComputed means the tier was derived from the similarity score.
	DecisionComputed
)

func (s DecisionSource) String() string {
	switch s {
	case DecisionStored:
		return "stored"
	case DecisionComputed:
		return "computed"
	default:
		return "unknown"
	}
}

// Decision is the classifier output. Tier is empty when Source is
// DecisionUnknown.
type Decision struct {
	Source DecisionSource
	Tier   model.TriageDecision
}

// Known reports whether the decision carries a usable tier.
func (d Decision) Known() bool {
	return d.Source != DecisionUnknown
}

// Classify maps one match to a triage decision. A recognized decision stored
// in match details shadows the computed one: once recorded, the classifier
// never recomputes it. Classification is pure; the same input always yields
// the same decision.
func Classify(m *model.SimilarityMatch) Decision {
	if stored, ok := storedDecision(m); ok {
		return Decision{Source: DecisionStored, Tier: stored}
	}

	score, ok := m.Score()
	if !ok {
		return Decision{Source: DecisionUnknown}
	}
	return Decision{Source: DecisionComputed, Tier: classifyScore(score)}
}

func storedDecision(m *model.SimilarityMatch) (model.TriageDecision, bool) {
	raw, ok := m.Details()["triage_decision"].(string)
	if !ok {
		return "", false
	}
	return model.ParseTriageDecision(raw)
}

// classifyScore applies the threshold bands top-down; the first matching
// (highest) band wins.
func classifyScore(score float64) model.TriageDecision {
	switch {
	case score >= AutoApproveThreshold:
		return model.TriageAutoApprove
	case score >= AIAuditThreshold:
		return model.TriageAIAudit
	case score >= HITLThreshold:
		return model.TriageHITLRequired
	default:
		return model.TriageRejected
	}
}

// ExtractionStatus derives the spec-extraction state of a match. A failed
// extraction is reported by upstream data directly and never derived here.
func ExtractionStatus(m *model.SimilarityMatch) model.ExtractionStatus {
	if len(m.ExtractedSpecs) > 0 {
		return model.ExtractionComplete
	}
	if m.ExtractionSessionID != nil {
		return model.ExtractionInProgress
	}
	return model.ExtractionPending
}
