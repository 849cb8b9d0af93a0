package triage

import (
	"github.com/pimworks/golden-cli/internal/model"
)

// Stats aggregates triage state over a set of matches.
type Stats struct {
	Total              int     `json:"total"`
	Pending            int     `json:"pending"`
	Confirmed          int     `json:"confirmed"`
	Rejected           int     `json:"rejected"`
	AutoApproved       int     `json:"autoApproved"`
	AIAuditPending     int     `json:"aiAuditPending"`
	AIAuditCompleted   int     `json:"aiAuditCompleted"`
	HITLPending        int     `json:"hitlPending"`
	Unclassified       int     `json:"unclassified"`
	AvgSimilarityScore float64 `json:"avgSimilarityScore"`
}

// ComputeStats tallies confidence statuses and triage tiers for the given
// matches. Matches with unparseable scores count toward Unclassified and are
// excluded from the average.
func ComputeStats(matches []model.SimilarityMatch) Stats {
	var stats Stats
	stats.Total = len(matches)

	var scoreSum float64
	var scoreCount int

	for i := range matches {
		m := &matches[i]
		switch m.MatchConfidence {
		case model.ConfidencePending:
			stats.Pending++
		case model.ConfidenceConfirmed:
			stats.Confirmed++
		case model.ConfidenceRejected:
			stats.Rejected++
		}

		d := Classify(m)
		switch {
		case !d.Known():
			stats.Unclassified++
		case d.Tier == model.TriageAutoApprove:
			stats.AutoApproved++
		case d.Tier == model.TriageAIAudit:
			if HasAIAudit(m) {
				stats.AIAuditCompleted++
			} else {
				stats.AIAuditPending++
			}
		case d.Tier == model.TriageHITLRequired:
			if m.MatchConfidence == model.ConfidencePending {
				stats.HITLPending++
			}
		}

		if score, ok := m.Score(); ok {
			scoreSum += score
			scoreCount++
		}
	}

	if scoreCount > 0 {
		stats.AvgSimilarityScore = scoreSum / float64(scoreCount)
	}
	return stats
}
