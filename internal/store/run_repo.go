package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("job run not found")

// RunStatus mirrors the job run status column.
type RunStatus string

// Job run statuses.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// JobRun models one execution of a job.
type JobRun struct {
	JobID     string
	Variant   string
	StartedAt time.Time
	// FinishedAt is nil until the run is marked success/error.
	FinishedAt      *time.Time
	Status          RunStatus
	ChaptersDone    int
	ChaptersMissing int
	ErrorMessage    *string
}

// RunRepository persists job run history.
type RunRepository interface {
	// UpsertJobStart starts (or restarts) the run for jobID and resets its counters.
	UpsertJobStart(ctx context.Context, jobID, variant string, startedAt time.Time) error
	// AddChapters applies finished-chapter deltas.
	AddChapters(ctx context.Context, jobID string, done, missing int, at time.Time) error
	// CompleteJob marks the run finished with the provided status and error.
	CompleteJob(ctx context.Context, jobID string, finishedAt time.Time, status RunStatus, errMsg *string) error
	// GetJob loads the latest run for jobID or returns ErrNotFound.
	GetJob(ctx context.Context, jobID string) (JobRun, error)
}
