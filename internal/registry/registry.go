// Package registry tracks jobs that are admitted or running, plus a bounded
// record of recent failures.
package registry

import (
	"sync"
	"time"

	"github.com/JakeFAU/novel-crawler/internal/novel"
)

// DefaultFailureCapacity bounds the failure record when unset.
const DefaultFailureCapacity = 1024

// Failure describes a job that ended without a stored document.
type Failure struct {
	JobID    string
	Error    string
	Finished time.Time
}

type entry struct {
	mu  sync.Mutex
	job novel.Job
}

// Registry is safe for concurrent use. Registration is atomic per job id.
type Registry struct {
	active sync.Map // job id -> *entry

	mu       sync.Mutex
	failures map[string]Failure
	order    []string
	capacity int
}

// New returns a Registry retaining up to capacity failures.
func New(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultFailureCapacity
	}
	return &Registry{failures: make(map[string]Failure), capacity: capacity}
}

// Register records job as active. It reports false when a job with the same
// id was already registered, in which case nothing changes.
func (r *Registry) Register(job novel.Job) bool {
	_, loaded := r.active.LoadOrStore(job.ID, &entry{job: job})
	return !loaded
}

// Unregister drops id from the active set without recording an outcome.
func (r *Registry) Unregister(id string) {
	r.active.Delete(id)
}

// MarkRunning flags id as executing.
func (r *Registry) MarkRunning(id string, at time.Time) {
	v, ok := r.active.Load(id)
	if !ok {
		return
	}
	e := v.(*entry)
	e.mu.Lock()
	e.job.Status = novel.JobStatusRunning
	e.job.Started = &at
	e.mu.Unlock()
}

// Finish removes id from the active set. A non-nil err is kept in the
// failure record; success clears any earlier failure for id.
func (r *Registry) Finish(id string, err error, at time.Time) {
	r.mu.Lock()
	if err != nil {
		r.recordFailure(Failure{JobID: id, Error: err.Error(), Finished: at})
	} else {
		r.dropFailure(id)
	}
	r.mu.Unlock()
	r.active.Delete(id)
}

// Lookup returns a snapshot of an active job.
func (r *Registry) Lookup(id string) (novel.Job, bool) {
	v, ok := r.active.Load(id)
	if !ok {
		return novel.Job{}, false
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job, true
}

// Failure returns the recorded failure for id, if still retained.
func (r *Registry) Failure(id string) (Failure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.failures[id]
	return f, ok
}

// Active counts registered jobs.
func (r *Registry) Active() int {
	n := 0
	r.active.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// recordFailure must be called with r.mu held. The oldest failure is evicted
// once capacity is reached.
func (r *Registry) recordFailure(f Failure) {
	if _, ok := r.failures[f.JobID]; ok {
		r.dropFailure(f.JobID)
	}
	if len(r.order) >= r.capacity {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.failures, oldest)
	}
	r.failures[f.JobID] = f
	r.order = append(r.order, f.JobID)
}

func (r *Registry) dropFailure(id string) {
	if _, ok := r.failures[id]; !ok {
		return
	}
	delete(r.failures, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
