// Package store persists manual conflict resolutions, triage overrides, and
// promotion history behind a dual-driver interface.
package store

import (
	"context"
	"time"

	"github.com/pimworks/golden-cli/internal/model"
)

// Store is the persistence surface of the fusion engine. Two drivers exist:
// SQLite for single-operator local use and Postgres for shared deployments.
type Store interface {
	// Resolutions
	SaveResolution(ctx context.Context, productID, attribute string, res model.Resolution) error
	GetResolutions(ctx context.Context, productID string) (map[string]model.Resolution, error)
	DeleteResolution(ctx context.Context, productID, attribute string) error

	// Triage overrides
	SaveTriageOverride(ctx context.Context, matchID string, decision model.TriageDecision, reviewer string) error
	GetTriageOverride(ctx context.Context, matchID string) (model.TriageDecision, bool, error)

	// Promotion history. RecordPromotion is write-once per level: the first
	// timestamp for a level sticks, later promotions to the same level after
	// a demotion do not move it.
	RecordPromotion(ctx context.Context, productID string, level model.QualityLevel, at time.Time) error
	GetPromotionTimestamps(ctx context.Context, productID string) (model.PromotionTimestamps, error)
	CountGolden(ctx context.Context) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
