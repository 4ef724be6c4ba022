package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/novel-crawler/internal/novel"
)

// DefaultWorkers is the number of chapters fetched concurrently per job.
const DefaultWorkers = 5

// Pool runs chapter fetches with at most a fixed number in flight.
type Pool struct {
	workers int
}

// NewPool returns a Pool of the given width.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pool{workers: workers}
}

// Workers reports the pool width.
func (p *Pool) Workers() int {
	return p.workers
}

// Run calls fetch once for every index in [0, count) and returns the results
// addressed by index. onDone sees each result in completion order; calls are
// serialized. Indices not yet started when ctx ends are reported with ctx's
// error instead of being fetched.
func (p *Pool) Run(
	ctx context.Context,
	count int,
	fetch func(ctx context.Context, index int) novel.ChapterResult,
	onDone func(novel.ChapterResult),
) []novel.ChapterResult {
	results := make([]novel.ChapterResult, count)
	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(p.workers)

	for i := range count {
		g.Go(func() error {
			var res novel.ChapterResult
			if err := ctx.Err(); err != nil {
				res = novel.ChapterResult{Err: err}
			} else {
				res = fetch(ctx, i)
			}
			res.Index = i
			results[i] = res

			if onDone != nil {
				mu.Lock()
				onDone(res)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
