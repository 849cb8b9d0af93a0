package consensus

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pimworks/golden-cli/internal/model"
)

type memStore struct {
	resolutions map[string]map[string]model.Resolution
	failGet     bool
}

func newMemStore() *memStore {
	return &memStore{resolutions: make(map[string]map[string]model.Resolution)}
}

func (s *memStore) SaveResolution(_ context.Context, productID, attribute string, res model.Resolution) error {
	if s.resolutions[productID] == nil {
		s.resolutions[productID] = make(map[string]model.Resolution)
	}
	s.resolutions[productID][attribute] = res
	return nil
}

func (s *memStore) GetResolutions(_ context.Context, productID string) (map[string]model.Resolution, error) {
	if s.failGet {
		return nil, eris.New("boom")
	}
	out := make(map[string]model.Resolution, len(s.resolutions[productID]))
	for k, v := range s.resolutions[productID] {
		out[k] = v
	}
	return out, nil
}

func (s *memStore) DeleteResolution(_ context.Context, productID, attribute string) error {
	delete(s.resolutions[productID], attribute)
	return nil
}

func colorConflict() model.ConflictRecord {
	return model.ConflictRecord{
		AttributeName: "color",
		Reason:        ReasonCloseVote,
		Values: []model.ConsensusVote{
			vote("a", "red", 0.9, 0.8),
			vote("b", "blue", 0.9, 0.78),
		},
	}
}

func TestConflictOptionsEqualWeightStableOrder(t *testing.T) {
	conflict := model.ConflictRecord{
		AttributeName: "color",
		Reason:        ReasonCloseVote,
		Values: []model.ConsensusVote{
			vote("a", "red", 0.8, 0.9),
			vote("b", "blue", 0.8, 0.9),
		},
	}

	options := ConflictOptions(conflict)
	require.Len(t, options, 2)
	assert.Equal(t, "red", options[0].Value)
	assert.Equal(t, "blue", options[1].Value)
	assert.InDelta(t, options[0].Weight, options[1].Weight, 1e-12)
}

func TestConflictOptionsTrustAvg(t *testing.T) {
	conflict := model.ConflictRecord{
		AttributeName: "color",
		Values: []model.ConsensusVote{
			vote("a", "red", 0.9, 0.5),
			vote("b", "red", 0.7, 0.5),
			vote("c", "blue", 1.0, 1.0),
		},
	}

	options := ConflictOptions(conflict)
	require.Len(t, options, 2)
	// blue has more weight (1.0) than red (0.45+0.35), so it ranks first
	assert.Equal(t, "blue", options[0].Value)
	assert.Equal(t, "red", options[1].Value)
	assert.Equal(t, 2, options[1].SourcesCount)
	assert.InDelta(t, 0.8, options[1].TrustAvg, 1e-9)
}

func TestResolveRejectsForeignValue(t *testing.T) {
	r := NewResolver(newMemStore())
	_, err := r.Resolve(context.Background(), "p1", colorConflict(), "green", "alice")
	assert.ErrorIs(t, err, ErrValueNotInConflict)
}

func TestResolveAcceptsNormalizedValue(t *testing.T) {
	store := newMemStore()
	now := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	r := NewResolver(store).WithNow(func() time.Time { return now })

	res, err := r.Resolve(context.Background(), "p1", colorConflict(), "  RED ", "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "alice", res.ResolvedBy)
	assert.Equal(t, now, res.ResolvedAt)
	assert.Equal(t, 1, res.Version)
}

func TestResolveBumpsVersion(t *testing.T) {
	store := newMemStore()
	r := NewResolver(store)

	first, err := r.Resolve(context.Background(), "p1", colorConflict(), "red", "alice")
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), "p1", colorConflict(), "blue", "bob")
	require.NoError(t, err)
	assert.Equal(t, first.Version+1, second.Version)
}

func TestStateTransitions(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := NewResolver(store)

	noVotes := Vote("color", nil, Options{})
	state, err := r.State(ctx, "p1", noVotes)
	require.NoError(t, err)
	assert.Equal(t, StateUnresolved, state)

	clear := Vote("color", []model.ConsensusVote{vote("a", "red", 0.95, 0.95)}, Options{})
	state, err = r.State(ctx, "p1", clear)
	require.NoError(t, err)
	assert.Equal(t, StateTentative, state)

	close := Vote("color", []model.ConsensusVote{
		vote("a", "red", 0.9, 0.8),
		vote("b", "blue", 0.9, 0.78),
	}, Options{})
	state, err = r.State(ctx, "p1", close)
	require.NoError(t, err)
	assert.Equal(t, StateConflicted, state)

	_, err = r.Resolve(ctx, "p1", *close.Conflict, "red", "alice")
	require.NoError(t, err)
	state, err = r.State(ctx, "p1", close)
	require.NoError(t, err)
	assert.Equal(t, StateManuallyResolved, state)
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := NewResolver(store)

	version, err := r.Reopen(ctx, "p1", "color")
	require.NoError(t, err)
	assert.Zero(t, version)

	res, err := r.Resolve(ctx, "p1", colorConflict(), "red", "alice")
	require.NoError(t, err)

	version, err = r.Reopen(ctx, "p1", "color")
	require.NoError(t, err)
	assert.Equal(t, res.Version, version)

	resolutions, err := store.GetResolutions(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, resolutions)
}

func TestApplyRecomputeKeepsManualValues(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := NewResolver(store)

	_, err := r.Resolve(ctx, "p1", colorConflict(), "red", "alice")
	require.NoError(t, err)

	outcome, err := r.ApplyRecompute(ctx, "p1", map[string]any{
		"color": "blue",
		"brand": "Acme",
	})
	require.NoError(t, err)
	assert.Equal(t, "red", outcome.Merged["color"])
	assert.Equal(t, "Acme", outcome.Merged["brand"])
	assert.Equal(t, []string{"color"}, outcome.Skipped)
}

func TestApplyRecomputeCarriesResolutionsAbsentFromComputed(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := NewResolver(store)

	_, err := r.Resolve(ctx, "p1", colorConflict(), "red", "alice")
	require.NoError(t, err)

	outcome, err := r.ApplyRecompute(ctx, "p1", map[string]any{"brand": "Acme"})
	require.NoError(t, err)
	assert.Equal(t, "red", outcome.Merged["color"])
	assert.Empty(t, outcome.Skipped)
}

func TestOverrideVersionCheck(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := NewResolver(store)

	res, err := r.Resolve(ctx, "p1", colorConflict(), "red", "alice")
	require.NoError(t, err)

	assert.ErrorIs(t, r.Override(ctx, "p1", "color", res.Version+5), ErrStaleResolution)

	require.NoError(t, r.Override(ctx, "p1", "color", res.Version))
	resolutions, err := store.GetResolutions(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, resolutions)

	// Overriding an attribute with no resolution is a no-op.
	assert.NoError(t, r.Override(ctx, "p1", "color", 1))
}

func TestResolverStoreErrorsWrapped(t *testing.T) {
	store := newMemStore()
	store.failGet = true
	r := NewResolver(store)

	_, err := r.Resolve(context.Background(), "p1", colorConflict(), "red", "alice")
	assert.Error(t, err)
}
