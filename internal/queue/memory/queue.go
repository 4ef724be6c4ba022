// Package memory provides the bounded in-process job queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/novel-crawler/internal/metrics"
	"github.com/JakeFAU/novel-crawler/internal/novel"
)

// Queue is a bounded channel of admitted jobs with context-aware operations.
// Close is signaled on done; the item channel itself is never closed so a
// late Enqueue cannot panic.
type Queue struct {
	ch        chan novel.QueueItem
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue constructs a queue holding at most capacity pending jobs.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch:   make(chan novel.QueueItem, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue admits item, blocking while the queue is full until ctx ends or the
// queue is closed.
func (q *Queue) Enqueue(ctx context.Context, item novel.QueueItem) error {
	select {
	case <-q.done:
		return novel.ErrQueueClosed
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return novel.ErrQueueClosed
	case q.ch <- item:
		metrics.SetQueueDepth(len(q.ch))
		return nil
	}
}

// Dequeue pops the next job, respecting context cancellation. Jobs admitted
// before Close are still handed out; after that it returns ErrQueueClosed.
func (q *Queue) Dequeue(ctx context.Context) (novel.QueueItem, error) {
	select {
	case <-ctx.Done():
		return novel.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item := <-q.ch:
		metrics.SetQueueDepth(len(q.ch))
		return item, nil
	case <-q.done:
		select {
		case item := <-q.ch:
			metrics.SetQueueDepth(len(q.ch))
			return item, nil
		default:
			return novel.QueueItem{}, novel.ErrQueueClosed
		}
	}
}

// Len reports the number of pending jobs.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap reports the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}

// Close stops admission and wakes blocked callers. It is safe to call twice.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}
