package consensus

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pimworks/golden-cli/internal/model"
)

// ResolutionState is the per-attribute state of the conflict lifecycle:
// unresolved → tentative → conflicted → manually_resolved, with an explicit
// reopen transition back to unresolved.
type ResolutionState string

const (
	StateUnresolved       ResolutionState = "unresolved"
	StateTentative        ResolutionState = "tentative"
	StateConflicted       ResolutionState = "conflicted"
	StateManuallyResolved ResolutionState = "manually_resolved"
)

// ErrValueNotInConflict is returned when a resolution picks a value no source
// proposed for the attribute.
var ErrValueNotInConflict = eris.New("consensus: resolution value is not among the conflicting options")

// ErrStaleResolution is returned when a recompute tries to overwrite a manual
// resolution with a version check that no longer matches.
var ErrStaleResolution = eris.New("consensus: resolution version mismatch")

// Option is one competing value a reviewer can pick to settle a conflict.
// TrustAvg is the plain mean of the group's trust scores, deliberately not
// similarity-discounted, so raw source reliability stays visible next to the
// voting weight.
type Option struct {
	Label        string  `json:"label"`
	Value        any     `json:"value"`
	Weight       float64 `json:"weight"`
	SourcesCount int     `json:"sourcesCount"`
	TrustAvg     float64 `json:"trustAvg"`
}

// ConflictOptions ranks a conflict's competing values for manual resolution,
// heaviest first.
func ConflictOptions(conflict model.ConflictRecord) []Option {
	groups := groupVotes(conflict.Values)
	options := make([]Option, 0, len(groups))
	for _, g := range groups {
		var trustSum float64
		for _, v := range g.Votes {
			trustSum += v.TrustScore
		}
		opt := Option{
			Label:        g.Label,
			Value:        g.Value,
			Weight:       g.Weight,
			SourcesCount: g.Count,
		}
		if g.Count > 0 {
			opt.TrustAvg = trustSum / float64(g.Count)
		}
		options = append(options, opt)
	}
	// Same ordering rule as the voter: weight descending, insertion-stable.
	sort.SliceStable(options, func(i, j int) bool {
		return options[i].Weight > options[j].Weight
	})
	return options
}

// ResolutionStore persists manual resolutions per product attribute.
type ResolutionStore interface {
	SaveResolution(ctx context.Context, productID, attribute string, res model.Resolution) error
	GetResolutions(ctx context.Context, productID string) (map[string]model.Resolution, error)
	DeleteResolution(ctx context.Context, productID, attribute string) error
}

// Resolver applies and guards manual conflict resolutions. A manually
// resolved attribute stays authoritative until an explicit reopen; automatic
// recomputes skip it (last-resolution-wins with a version check).
type Resolver struct {
	store   ResolutionStore
	nowFunc func() time.Time
}

// NewResolver creates a Resolver over the given store.
func NewResolver(store ResolutionStore) *Resolver {
	return &Resolver{store: store, nowFunc: time.Now}
}

// WithNow fixes the clock for tests.
func (r *Resolver) WithNow(now func() time.Time) *Resolver {
	r.nowFunc = now
	return r
}

// State classifies one attribute given its latest vote result and any stored
// resolution.
func (r *Resolver) State(ctx context.Context, productID string, result VoteResult) (ResolutionState, error) {
	resolutions, err := r.store.GetResolutions(ctx, productID)
	if err != nil {
		return StateUnresolved, eris.Wrap(err, "consensus: load resolutions")
	}
	if _, ok := resolutions[result.Attribute]; ok {
		return StateManuallyResolved, nil
	}
	if result.Winner == nil {
		return StateUnresolved, nil
	}
	if result.Conflict != nil {
		return StateConflicted, nil
	}
	return StateTentative, nil
}

// Resolve records a human's chosen value for a conflicted attribute. The
// value must be one of the conflict's competing options. Resolving bumps the
// attribute's resolution version.
func (r *Resolver) Resolve(ctx context.Context, productID string, conflict model.ConflictRecord, value any, resolvedBy string) (model.Resolution, error) {
	key := ValueKey(value)
	found := false
	for _, v := range conflict.Values {
		if ValueKey(v.Value) == key {
			found = true
			break
		}
	}
	if !found {
		return model.Resolution{}, ErrValueNotInConflict
	}

	existing, err := r.store.GetResolutions(ctx, productID)
	if err != nil {
		return model.Resolution{}, eris.Wrap(err, "consensus: load resolutions")
	}
	version := 1
	if prev, ok := existing[conflict.AttributeName]; ok {
		version = prev.Version + 1
	}

	res := model.Resolution{
		ID:         uuid.New().String(),
		Value:      value,
		ResolvedBy: resolvedBy,
		ResolvedAt: r.nowFunc().UTC(),
		Version:    version,
	}
	if err := r.store.SaveResolution(ctx, productID, conflict.AttributeName, res); err != nil {
		return model.Resolution{}, eris.Wrap(err, "consensus: save resolution")
	}

	zap.L().Info("conflict resolved",
		zap.String("product_id", productID),
		zap.String("attribute", conflict.AttributeName),
		zap.Int("version", version),
	)
	return res, nil
}

// Reopen clears a manual resolution, returning the attribute to the
// automatic lifecycle. The caller receives the version that was cleared so a
// follow-up recompute can prove it acted on current state.
func (r *Resolver) Reopen(ctx context.Context, productID, attribute string) (int, error) {
	resolutions, err := r.store.GetResolutions(ctx, productID)
	if err != nil {
		return 0, eris.Wrap(err, "consensus: load resolutions")
	}
	prev, ok := resolutions[attribute]
	if !ok {
		return 0, nil
	}
	if err := r.store.DeleteResolution(ctx, productID, attribute); err != nil {
		return 0, eris.Wrap(err, "consensus: delete resolution")
	}
	return prev.Version, nil
}

// MergeOutcome reports how a recompute interacted with stored resolutions.
type MergeOutcome struct {
	// Merged holds the attribute values after the recompute, with manual
	// resolutions taking precedence over computed winners.
	Merged map[string]any
	// Skipped lists attributes whose computed value was discarded because a
	// manual resolution holds.
	Skipped []string
}

// ApplyRecompute merges freshly computed attribute values with stored manual
// resolutions. Resolved attributes keep their manual value; the computed
// winner is dropped and the attribute reported in Skipped. A recompute never
// silently clobbers a human decision.
func (r *Resolver) ApplyRecompute(ctx context.Context, productID string, computed map[string]any) (MergeOutcome, error) {
	resolutions, err := r.store.GetResolutions(ctx, productID)
	if err != nil {
		return MergeOutcome{}, eris.Wrap(err, "consensus: load resolutions")
	}

	outcome := MergeOutcome{Merged: make(map[string]any, len(computed))}
	for attr, value := range computed {
		if res, ok := resolutions[attr]; ok {
			outcome.Merged[attr] = res.Value
			outcome.Skipped = append(outcome.Skipped, attr)
			continue
		}
		outcome.Merged[attr] = value
	}
	for attr, res := range resolutions {
		if _, ok := outcome.Merged[attr]; !ok {
			outcome.Merged[attr] = res.Value
		}
	}
	return outcome, nil
}

// Override replaces a resolved attribute's value from a recompute, but only
// when the caller proves it saw the current resolution version. A stale
// version returns ErrStaleResolution and leaves the resolution intact.
func (r *Resolver) Override(ctx context.Context, productID, attribute string, version int) error {
	resolutions, err := r.store.GetResolutions(ctx, productID)
	if err != nil {
		return eris.Wrap(err, "consensus: load resolutions")
	}
	res, ok := resolutions[attribute]
	if !ok {
		return nil
	}
	if res.Version != version {
		return ErrStaleResolution
	}
	return eris.Wrap(r.store.DeleteResolution(ctx, productID, attribute), "consensus: delete resolution")
}
