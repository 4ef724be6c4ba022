// Package dispatcher admits jobs with atomic deduplication and fans queued
// work out to a fixed set of workers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/novel-crawler/internal/metrics"
	"github.com/JakeFAU/novel-crawler/internal/novel"
	"github.com/JakeFAU/novel-crawler/internal/registry"
	"github.com/JakeFAU/novel-crawler/internal/site"
	"github.com/JakeFAU/novel-crawler/internal/worker"
)

// ErrQueueFull is returned when a job cannot be admitted before the enqueue
// timeout.
var ErrQueueFull = errors.New("job queue is full")

// Defaults applied when Config leaves a field unset.
const (
	DefaultJobConcurrency = 2
	DefaultEnqueueTimeout = 2 * time.Second
)

// Status values returned by Dispatch.
const (
	StatusReady   = "ready"
	StatusStarted = "started"
)

// State values returned by Status.
const (
	StateUnknown  = "unknown"
	StateRunning  = "running"
	StateComplete = "complete"
	StateFailed   = "failed"
)

// Outcome is the result of a dispatch.
type Outcome struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

// JobState describes what the service knows about a job id.
type JobState struct {
	ID    string `json:"id"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// Config controls admission.
type Config struct {
	JobConcurrency int
	EnqueueTimeout time.Duration
}

// Dispatcher owns job admission and the worker set.
type Dispatcher struct {
	store    novel.ResultStore
	registry *registry.Registry
	queue    novel.Queue
	runner   worker.JobRunner
	clock    novel.Clock
	cfg      Config
	logger   *zap.Logger
}

// New creates a Dispatcher.
func New(
	store novel.ResultStore,
	reg *registry.Registry,
	queue novel.Queue,
	runner worker.JobRunner,
	clock novel.Clock,
	cfg Config,
	logger *zap.Logger,
) *Dispatcher {
	if cfg.JobConcurrency <= 0 {
		cfg.JobConcurrency = DefaultJobConcurrency
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = DefaultEnqueueTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		store:    store,
		registry: reg,
		queue:    queue,
		runner:   runner,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// Dispatch resolves ref and either reports a stored document or makes sure
// exactly one run for it is admitted.
func (d *Dispatcher) Dispatch(ctx context.Context, ref string) (Outcome, error) {
	src, err := site.Resolve(ref)
	if err != nil {
		return Outcome{}, err
	}
	id := src.ID

	stored, err := d.stored(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	if stored {
		metrics.ObserveDedupHit()
		d.logger.Debug("document already stored", zap.String("job_id", id))
		return Outcome{Status: StatusReady, ID: id}, nil
	}

	now := d.clock.Now()
	job := novel.Job{ID: id, Source: src, Status: novel.JobStatusPending, Submitted: now}
	if !d.registry.Register(job) {
		metrics.ObserveDedupHit()
		d.logger.Debug("job already in progress", zap.String("job_id", id))
		return Outcome{Status: StatusStarted, ID: id}, nil
	}

	// A previous run may have stored the document between the check and the
	// registration.
	stored, err = d.stored(ctx, id)
	if err != nil {
		d.registry.Unregister(id)
		return Outcome{}, err
	}
	if stored {
		d.registry.Unregister(id)
		return Outcome{Status: StatusReady, ID: id}, nil
	}

	enqueueCtx, cancel := context.WithTimeout(ctx, d.cfg.EnqueueTimeout)
	defer cancel()
	if err := d.queue.Enqueue(enqueueCtx, novel.QueueItem{Job: job, Submitted: now.UnixNano()}); err != nil {
		d.registry.Unregister(id)
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return Outcome{}, ErrQueueFull
		}
		return Outcome{}, fmt.Errorf("enqueue job %s: %w", id, err)
	}
	d.logger.Info("job admitted",
		zap.String("job_id", id),
		zap.String("variant", string(src.Variant)),
		zap.String("toc_url", src.TOCURL),
	)
	return Outcome{Status: StatusStarted, ID: id}, nil
}

// Run starts the configured number of workers and blocks until ctx ends and
// every worker has returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := range d.cfg.JobConcurrency {
		w := worker.New(i+1, d.queue, d.runner, d.registry, d.clock, d.logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}
	d.logger.Info("dispatcher started", zap.Int("workers", d.cfg.JobConcurrency))
	<-ctx.Done()
	wg.Wait()
}

// Status reports the state of id. Active jobs take precedence over stored
// documents, which take precedence over recorded failures.
func (d *Dispatcher) Status(ctx context.Context, id string) (JobState, error) {
	if _, ok := d.registry.Lookup(id); ok {
		return JobState{ID: id, State: StateRunning}, nil
	}
	stored, err := d.stored(ctx, id)
	if err != nil {
		return JobState{}, err
	}
	if stored {
		return JobState{ID: id, State: StateComplete}, nil
	}
	if f, ok := d.registry.Failure(id); ok {
		return JobState{ID: id, State: StateFailed, Error: f.Error}, nil
	}
	return JobState{ID: id, State: StateUnknown}, nil
}

// Active counts admitted or running jobs.
func (d *Dispatcher) Active() int {
	return d.registry.Active()
}

func (d *Dispatcher) stored(ctx context.Context, id string) (bool, error) {
	_, err := d.store.Get(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, novel.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("lookup document %s: %w", id, err)
	}
}
