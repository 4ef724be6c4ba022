// Package worker implements the job execution loop that drains the admission
// queue.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/novel-crawler/internal/metrics"
	"github.com/JakeFAU/novel-crawler/internal/novel"
)

// JobRunner executes one admitted job.
type JobRunner interface {
	Run(ctx context.Context, job novel.Job) (novel.Document, error)
}

// Lifecycle is notified as a job starts and ends.
type Lifecycle interface {
	MarkRunning(id string, at time.Time)
	Finish(id string, err error, at time.Time)
}

// Worker consumes queue items and runs them one at a time.
type Worker struct {
	id        int
	queue     novel.Queue
	runner    JobRunner
	lifecycle Lifecycle
	clock     novel.Clock
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	id int,
	queue novel.Queue,
	runner JobRunner,
	lifecycle Lifecycle,
	clock novel.Clock,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:        id,
		queue:     queue,
		runner:    runner,
		lifecycle: lifecycle,
		clock:     clock,
		logger:    logger.With(zap.Int("worker", id)),
	}
}

// Run blocks, consuming queue items until the context finishes or the queue
// closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, novel.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.Job.ID))
		w.process(ctx, item)
	}
}

func (w *Worker) process(ctx context.Context, item novel.QueueItem) {
	job := item.Job
	logger := w.logger.With(zap.String("job_id", job.ID))
	if w.runner == nil {
		logger.Error("no job runner configured")
		w.finish(job.ID, errors.New("no job runner configured"))
		return
	}

	if w.lifecycle != nil {
		w.lifecycle.MarkRunning(job.ID, w.clock.Now())
	}
	metrics.IncActiveJobs()
	if item.Submitted > 0 {
		wait := w.clock.Now().Sub(time.Unix(0, item.Submitted))
		logger.Debug("job started", zap.Duration("queued_for", wait))
	}

	doc, err := w.run(ctx, job)
	metrics.DecActiveJobs()

	if err != nil {
		metrics.ObserveJob(string(novel.JobStatusFailed))
		logger.Warn("job failed", zap.Error(err))
	} else {
		metrics.ObserveJob(string(novel.JobStatusComplete))
		logger.Info("job finished", zap.String("title", doc.Title), zap.Int("missing", len(doc.MissingChapters)))
	}
	w.finish(job.ID, err)
}

// run shields the loop from a panicking runner.
func (w *Worker) run(ctx context.Context, job novel.Job) (doc novel.Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("job runner panicked", zap.String("job_id", job.ID), zap.Any("panic", r))
			err = errors.New("internal error")
		}
	}()
	return w.runner.Run(ctx, job)
}

func (w *Worker) finish(id string, err error) {
	if w.lifecycle != nil {
		w.lifecycle.Finish(id, err, w.clock.Now())
	}
}
