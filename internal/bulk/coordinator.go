// Package bulk coordinates retries of failed or stalled bulk-ingestion runs
// against the PIM backend.
package bulk

import (
	"context"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pimworks/golden-cli/internal/model"
)

// API is the backend surface the coordinator drives.
type API interface {
	GetBulkRun(ctx context.Context, runID string) (model.BulkRun, error)
	RetryBulkRun(ctx context.Context, runID string, mode model.RetryMode) (model.BulkRun, error)
}

// ErrRetryInFlight is returned when a retry for the same run is already
// running.
var ErrRetryInFlight = eris.New("bulk: retry already in flight for run")

// ErrRunCompleted is returned when a completed run is retried. Retrying a
// finished run is a no-op by design; surfacing it as an error keeps callers
// from believing new work was scheduled.
var ErrRunCompleted = eris.New("bulk: run already completed")

// ErrInvalidMode is returned for retry modes other than resume and restart.
var ErrInvalidMode = eris.New("bulk: invalid retry mode")

// Coordinator serializes retry submissions per run. Concurrent retries of the
// same run collapse to one; distinct runs proceed independently.
type Coordinator struct {
	api API

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewCoordinator creates a Coordinator over the given API.
func NewCoordinator(api API) *Coordinator {
	return &Coordinator{api: api, inFlight: make(map[string]struct{})}
}

// Retry re-submits a failed run. Mode resume continues from the last
// checkpoint; mode restart reprocesses from the beginning. The run's current
// state is checked first so a run that finished between the user's view and
// the retry never gets reprocessed.
func (c *Coordinator) Retry(ctx context.Context, runID string, mode model.RetryMode) (model.BulkRun, error) {
	if mode != model.RetryResume && mode != model.RetryRestart {
		return model.BulkRun{}, eris.Wrapf(ErrInvalidMode, "bulk: mode %q", mode)
	}

	c.mu.Lock()
	if _, ok := c.inFlight[runID]; ok {
		c.mu.Unlock()
		return model.BulkRun{}, ErrRetryInFlight
	}
	c.inFlight[runID] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inFlight, runID)
		c.mu.Unlock()
	}()

	run, err := c.api.GetBulkRun(ctx, runID)
	if err != nil {
		return model.BulkRun{}, eris.Wrap(err, "bulk: load run")
	}
	if run.Status == model.RunCompleted {
		return run, ErrRunCompleted
	}

	zap.L().Info("retrying bulk run",
		zap.String("run_id", runID),
		zap.String("mode", string(mode)),
		zap.String("previous_status", string(run.Status)),
	)

	updated, err := c.api.RetryBulkRun(ctx, runID, mode)
	if err != nil {
		return model.BulkRun{}, eris.Wrap(err, "bulk: submit retry")
	}
	return updated, nil
}

// CheckpointLabel renders a run's checkpoint for display. Record counts win
// over line counts when both are present; with neither the run has not
// committed anything yet.
func CheckpointLabel(cp model.Checkpoint) string {
	switch {
	case cp.CommittedRecords != nil:
		return fmt.Sprintf("Committed %d records", *cp.CommittedRecords)
	case cp.CommittedLines != nil:
		return fmt.Sprintf("Committed %d lines", *cp.CommittedLines)
	default:
		return "No checkpoint yet"
	}
}

// ResumeAvailable reports whether a run has a checkpoint to resume from.
// Without one, resume degrades to restart on the backend side, so callers
// should warn before submitting.
func ResumeAvailable(cp model.Checkpoint) bool {
	return cp.CommittedRecords != nil || cp.CommittedLines != nil
}
