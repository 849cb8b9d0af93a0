package model

import "time"

// ConsensusVote is one source's claim for one product attribute.
type ConsensusVote struct {
	Value           any     `json:"value"`
	AttributeName   string  `json:"attributeName"`
	SourceID        string  `json:"sourceId,omitempty"`
	SourceName      string  `json:"sourceName"`
	TrustScore      float64 `json:"trustScore"`
	SimilarityScore float64 `json:"similarityScore"`
	MatchID         string  `json:"matchId,omitempty"`
}

// ConflictRecord describes an attribute whose votes did not collapse to an
// unambiguous winner, with the full list of competing claims.
type ConflictRecord struct {
	AttributeName string          `json:"attributeName"`
	Reason        string          `json:"reason"`
	Values        []ConsensusVote `json:"values"`
}

// Provenance records which source won an attribute and when.
type Provenance struct {
	AttributeName    string          `json:"attributeName"`
	Value            any             `json:"value"`
	SourceID         string          `json:"sourceId,omitempty"`
	SourceName       string          `json:"sourceName"`
	TrustScore       float64         `json:"trustScore"`
	SimilarityScore  float64         `json:"similarityScore"`
	MatchID          string          `json:"matchId,omitempty"`
	Weight           float64         `json:"weight"`
	ResolvedAt       time.Time       `json:"resolvedAt"`
	Alternates       []ConsensusVote `json:"alternates,omitempty"`
	ConflictDetected bool            `json:"conflictDetected"`
}

// ConsensusSource is a contributing source as reported by the backend.
type ConsensusSource struct {
	SourceName      string  `json:"sourceName"`
	TrustScore      float64 `json:"trustScore"`
	SimilarityScore float64 `json:"similarityScore"`
	Status          string  `json:"status"`
}

// ConsensusResult is one fused attribute value.
type ConsensusResult struct {
	Attribute    string  `json:"attribute"`
	Value        string  `json:"value"`
	SourcesCount int     `json:"sourcesCount"`
	Confidence   float64 `json:"confidence"`
}

// ConsensusDetail is the full consensus state of one product.
type ConsensusDetail struct {
	ProductID        string                     `json:"productId"`
	Status           string                     `json:"status"`
	QualityScore     *float64                   `json:"qualityScore"`
	Breakdown        *QualityBreakdown          `json:"breakdown"`
	Sources          []ConsensusSource          `json:"sources"`
	Results          []ConsensusResult          `json:"results"`
	Conflicts        []ConflictRecord           `json:"conflicts"`
	Provenance       []Provenance               `json:"provenance"`
	VotesByAttribute map[string][]ConsensusVote `json:"votesByAttribute"`
}

// Resolution is a human's authoritative answer for a conflicted attribute.
// Version increments on every resolve so a concurrent recompute can detect
// that it is working against stale state.
type Resolution struct {
	ID         string    `json:"id"`
	Value      any       `json:"value"`
	ResolvedBy string    `json:"resolvedBy,omitempty"`
	ResolvedAt time.Time `json:"resolvedAt"`
	Version    int       `json:"version"`
}
