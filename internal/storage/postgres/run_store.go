package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/novel-crawler/internal/store"
)

const defaultRunsTable = "job_runs"

// RunStore implements store.RunRepository using Postgres.
type RunStore struct {
	pool  pool
	table string
}

// NewRunStore connects a dedicated pool for job run history.
func NewRunStore(ctx context.Context, cfg Config) (*RunStore, error) {
	p, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s, err := NewRunStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewRunStoreWithPool constructs a RunStore from an existing pool.
func NewRunStoreWithPool(p pool, table string) (*RunStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = defaultRunsTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RunStore{pool: p, table: table}, nil
}

// EnsureSchema creates the runs table when it does not exist.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	job_id           TEXT PRIMARY KEY,
	variant          TEXT NOT NULL DEFAULT '',
	started_at       TIMESTAMPTZ NOT NULL,
	finished_at      TIMESTAMPTZ,
	status           TEXT NOT NULL,
	chapters_done    INTEGER NOT NULL DEFAULT 0,
	chapters_missing INTEGER NOT NULL DEFAULT 0,
	error_message    TEXT
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

// UpsertJobStart inserts the run or restarts a previous one.
func (s *RunStore) UpsertJobStart(ctx context.Context, jobID, variant string, startedAt time.Time) error {
	query := fmt.Sprintf(`
INSERT INTO %s (job_id, variant, started_at, status)
VALUES ($1, $2, $3, $4)
ON CONFLICT (job_id) DO UPDATE
SET variant = EXCLUDED.variant,
	started_at = EXCLUDED.started_at,
	status = EXCLUDED.status,
	finished_at = NULL,
	chapters_done = 0,
	chapters_missing = 0,
	error_message = NULL`, s.table)
	if _, err := s.pool.Exec(ctx, query, jobID, variant, startedAt, string(store.RunRunning)); err != nil {
		return fmt.Errorf("failed to upsert job start: %w", err)
	}
	return nil
}

// AddChapters increments the chapter counters of a running job.
func (s *RunStore) AddChapters(ctx context.Context, jobID string, done, missing int, _ time.Time) error {
	query := fmt.Sprintf(`
UPDATE %s
SET chapters_done = chapters_done + $1,
	chapters_missing = chapters_missing + $2
WHERE job_id = $3`, s.table)
	if _, err := s.pool.Exec(ctx, query, done, missing, jobID); err != nil {
		return fmt.Errorf("failed to add chapters: %w", err)
	}
	return nil
}

// CompleteJob marks a job as completed with a status and optional error message.
func (s *RunStore) CompleteJob(
	ctx context.Context,
	jobID string,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	query := fmt.Sprintf(`
UPDATE %s
SET finished_at = $1, status = $2, error_message = $3
WHERE job_id = $4`, s.table)
	if _, err := s.pool.Exec(ctx, query, finishedAt, string(status), errMsg, jobID); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// GetJob retrieves the run recorded for jobID.
func (s *RunStore) GetJob(ctx context.Context, jobID string) (store.JobRun, error) {
	query := fmt.Sprintf(`
SELECT job_id, variant, started_at, finished_at, status, chapters_done, chapters_missing, error_message
FROM %s
WHERE job_id = $1`, s.table)
	var (
		run    store.JobRun
		status string
	)
	err := s.pool.QueryRow(ctx, query, jobID).Scan(
		&run.JobID,
		&run.Variant,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.ChaptersDone,
		&run.ChaptersMissing,
		&run.ErrorMessage,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.JobRun{}, fmt.Errorf("job run %s: %w", jobID, store.ErrNotFound)
	}
	if err != nil {
		return store.JobRun{}, fmt.Errorf("failed to get job: %w", err)
	}
	run.Status = store.RunStatus(status)
	return run, nil
}

// Ping checks connectivity for readiness probes.
func (s *RunStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *RunStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}
