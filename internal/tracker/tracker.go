// Package tracker keeps per-job completion percentages for polling clients.
package tracker

import (
	"sync"
	"time"

	"github.com/JakeFAU/novel-crawler/internal/novel"
)

const (
	// Complete is the percentage reported once a job's document is stored.
	Complete = 100
	// maxRunning keeps an unfinished job below Complete so that 100 is only
	// ever observed after Finish.
	maxRunning = Complete - 1
	// DefaultRetention is how long a finished entry outlives its job.
	DefaultRetention = 10 * time.Minute
)

type entry struct {
	percent    int
	finished   bool
	finishedAt time.Time
}

type finishedID struct {
	id string
	at time.Time
}

// Tracker is a concurrency-safe map from job id to percent complete.
// Values are non-decreasing for the lifetime of an entry. Finished entries
// are dropped once the retention window has passed; by then the stored
// document answers for the job.
type Tracker struct {
	mu        sync.Mutex
	entries   map[string]*entry
	finished  []finishedID
	retention time.Duration
	now       func() time.Time
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithRetention sets how long finished entries are kept. Zero or negative
// keeps them for the life of the process.
func WithRetention(d time.Duration) Option {
	return func(t *Tracker) { t.retention = d }
}

// WithClock overrides the time source used for retention.
func WithClock(c novel.Clock) Option {
	return func(t *Tracker) {
		if c != nil {
			t.now = c.Now
		}
	}
}

// New constructs an empty Tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		entries:   make(map[string]*entry),
		retention: DefaultRetention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record stores floor(completed*100/total) for id unless a higher value was
// already recorded. Calls after Finish are ignored.
func (t *Tracker) Record(id string, completed, total int) {
	pct := percent(completed, total)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked()

	e, ok := t.entries[id]
	if !ok {
		t.entries[id] = &entry{percent: pct}
		return
	}
	if e.finished || pct <= e.percent {
		return
	}
	e.percent = pct
}

// Finish forces id to 100. It returns true only for the call that performed
// the transition.
func (t *Tracker) Finish(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked()

	e, ok := t.entries[id]
	if !ok {
		e = &entry{}
		t.entries[id] = e
	} else if e.finished {
		return false
	}
	now := t.now()
	e.percent = Complete
	e.finished = true
	e.finishedAt = now
	if t.retention > 0 {
		t.finished = append(t.finished, finishedID{id: id, at: now})
	}
	return true
}

// Query returns the last recorded percentage, or 0 for unknown ids.
func (t *Tracker) Query(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked()

	if e, ok := t.entries[id]; ok {
		return e.percent
	}
	return 0
}

// Forget drops the entry for id. The runner calls this for a run that failed
// before recording anything.
func (t *Tracker) Forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// Len reports the number of tracked jobs.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked()
	return len(t.entries)
}

// pruneLocked drops finished entries older than the retention window. The
// finished queue is in Finish order, so only its head needs checking.
func (t *Tracker) pruneLocked() {
	if t.retention <= 0 || len(t.finished) == 0 {
		return
	}
	cutoff := t.now().Add(-t.retention)
	n := 0
	for _, f := range t.finished {
		if f.at.After(cutoff) {
			break
		}
		if e, ok := t.entries[f.id]; ok && e.finished && e.finishedAt.Equal(f.at) {
			delete(t.entries, f.id)
		}
		n++
	}
	if n > 0 {
		t.finished = append(t.finished[:0], t.finished[n:]...)
	}
}

func percent(completed, total int) int {
	if total <= 0 || completed <= 0 {
		return 0
	}
	if completed >= total {
		return maxRunning
	}
	return min(completed*100/total, maxRunning)
}
