package model

import "time"

// RunStatus is the lifecycle state of a bulk ingestion run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// RetryMode selects how a failed run is retried.
type RetryMode string

const (
	// RetryResume continues from the last committed checkpoint without
	// reprocessing committed records.
	RetryResume RetryMode = "resume"
	// RetryRestart discards the checkpoint and reprocesses from the start.
	RetryRestart RetryMode = "restart"
)

// Checkpoint is the last durably committed progress marker of a run. Exactly
// one of CommittedRecords or CommittedLines is populated by the worker.
type Checkpoint struct {
	CommittedRecords *int64     `json:"committedRecords,omitempty"`
	CommittedLines   *int64     `json:"committedLines,omitempty"`
	LastCommitAt     *time.Time `json:"lastCommitAt,omitempty"`
}

// BulkRun is one bulk ingestion run as reported by the backend.
type BulkRun struct {
	ID               string      `json:"id"`
	Status           RunStatus   `json:"status"`
	RecordsProcessed int64       `json:"recordsProcessed"`
	ErrorCount       int64       `json:"errorCount"`
	Checkpoint       *Checkpoint `json:"checkpoint,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}
