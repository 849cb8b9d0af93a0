package model

import (
	"math"
	"strconv"
	"time"
)

// ConfidenceStatus is the review state of a similarity match. A match holds
// exactly one status at a time; it is the single source of truth for the row.
type ConfidenceStatus string

const (
	ConfidencePending   ConfidenceStatus = "pending"
	ConfidenceConfirmed ConfidenceStatus = "confirmed"
	ConfidenceRejected  ConfidenceStatus = "rejected"
	ConfidenceUncertain ConfidenceStatus = "uncertain"
)

// TriageDecision is the automation tier assigned to a candidate match.
type TriageDecision string

const (
	TriageAutoApprove  TriageDecision = "auto_approve"
	TriageAIAudit      TriageDecision = "ai_audit"
	TriageHITLRequired TriageDecision = "hitl_required"
	TriageRejected     TriageDecision = "rejected"
)

// ParseTriageDecision returns the decision for a stored string, or false if
// the string is not a recognized tier.
func ParseTriageDecision(s string) (TriageDecision, bool) {
	switch TriageDecision(s) {
	case TriageAutoApprove, TriageAIAudit, TriageHITLRequired, TriageRejected:
		return TriageDecision(s), true
	}
	return "", false
}

// ExtractionStatus is the derived state of a match's spec extraction.
type ExtractionStatus string

const (
	ExtractionPending    ExtractionStatus = "pending"
	ExtractionInProgress ExtractionStatus = "in_progress"
	ExtractionComplete   ExtractionStatus = "complete"
)

// SimilarityMatch is one candidate linkage between a local product and an
// externally scraped listing. The similarity score arrives as decimal text
// from the backend and is parsed on demand.
type SimilarityMatch struct {
	ID                  string           `json:"id"`
	ProductID           string           `json:"product_id"`
	ProductTitle        string           `json:"product_title,omitempty"`
	SourceURL           string           `json:"source_url"`
	SourceTitle         string           `json:"source_title,omitempty"`
	SourceBrand         string           `json:"source_brand,omitempty"`
	SourceGTIN          string           `json:"source_gtin,omitempty"`
	SimilarityScore     string           `json:"similarity_score"`
	MatchMethod         string           `json:"match_method"`
	MatchConfidence     ConfidenceStatus `json:"match_confidence"`
	IsPrimarySource     *bool            `json:"is_primary_source,omitempty"`
	MatchDetails        map[string]any   `json:"match_details,omitempty"`
	SourceData          map[string]any   `json:"source_data,omitempty"`
	ExtractedSpecs      map[string]any   `json:"extracted_specs,omitempty"`
	ExtractionSessionID *string          `json:"extraction_session_id,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
}

// Score parses the similarity score. The second return is false when the
// stored text is not a finite number.
func (m *SimilarityMatch) Score() (float64, bool) {
	score, err := strconv.ParseFloat(m.SimilarityScore, 64)
	if err != nil || math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, false
	}
	return score, true
}

// Details returns the match-details map, never nil.
func (m *SimilarityMatch) Details() map[string]any {
	if m.MatchDetails == nil {
		return map[string]any{}
	}
	return m.MatchDetails
}
