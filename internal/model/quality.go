package model

import "time"

// QualityLevel is the promotion tier of a product's golden record.
type QualityLevel string

const (
	QualityReviewNeeded QualityLevel = "review_needed"
	QualityBronze       QualityLevel = "bronze"
	QualitySilver       QualityLevel = "silver"
	QualityGolden       QualityLevel = "golden"
)

// Rank orders levels: review_needed < bronze < silver < golden.
func (l QualityLevel) Rank() int {
	switch l {
	case QualityBronze:
		return 1
	case QualitySilver:
		return 2
	case QualityGolden:
		return 3
	default:
		return 0
	}
}

// NextLevel returns the level above l, or "" when l is already golden.
func (l QualityLevel) NextLevel() QualityLevel {
	switch l {
	case QualityReviewNeeded, QualityBronze:
		return QualitySilver
	case QualitySilver:
		return QualityGolden
	default:
		return ""
	}
}

// QualityBreakdown holds the four independent quality sub-scores, each in [0,1].
type QualityBreakdown struct {
	Completeness float64 `json:"completeness"`
	Accuracy     float64 `json:"accuracy"`
	Consistency  float64 `json:"consistency"`
	SourceWeight float64 `json:"sourceWeight"`
}

// PromotionTimestamps are write-once markers: set when a product first reaches
// a level, never cleared by a later demotion.
type PromotionTimestamps struct {
	PromotedToSilverAt *time.Time `json:"promotedToSilverAt"`
	PromotedToGoldenAt *time.Time `json:"promotedToGoldenAt"`
}
