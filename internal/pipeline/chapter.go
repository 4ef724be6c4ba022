package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/JakeFAU/novel-crawler/internal/metrics"
	"github.com/JakeFAU/novel-crawler/internal/novel"
)

// DefaultMaxAttempts bounds fetch attempts per page when unset.
const DefaultMaxAttempts = 5

// FetchConfig tunes retries and politeness for page fetches.
type FetchConfig struct {
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	DelayMin       time.Duration
	DelayMax       time.Duration
}

// ChapterTask identifies one chapter of a job.
type ChapterTask struct {
	JobID     string
	Source    novel.SourceRef
	Extractor novel.Extractor
	Index     int
}

// ChapterFetcher retrieves and parses pages with politeness delays and
// bounded retries.
type ChapterFetcher struct {
	pages   novel.PageFetcher
	limiter novel.Limiter
	backoff *BackoffPolicy
	cfg     FetchConfig
	clock   novel.Clock
	logger  *zap.Logger
}

// NewChapterFetcher wires a page transport and limiter. limiter may be nil.
func NewChapterFetcher(pages novel.PageFetcher, limiter novel.Limiter, clock novel.Clock, cfg FetchConfig, logger *zap.Logger) *ChapterFetcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChapterFetcher{
		pages:   pages,
		limiter: limiter,
		backoff: NewBackoffPolicy(cfg.BackoffInitial, cfg.BackoffMax),
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
	}
}

// Fetch makes up to MaxAttempts attempts at the chapter. It never returns an
// error: exhaustion is reported as a result wrapping novel.ErrChapterUnavailable.
func (f *ChapterFetcher) Fetch(ctx context.Context, task ChapterTask) novel.ChapterResult {
	start := f.clock.Now()
	url := task.Extractor.ChapterURL(task.Source, task.Index)
	variant := string(task.Extractor.Variant())
	logger := f.logger.With(
		zap.String("job_id", task.JobID),
		zap.Int("chapter", task.Index+1),
		zap.String("url", url),
	)

	var (
		text     string
		attempts int
	)
	err := f.do(ctx, func() error {
		attempts++
		body, err := f.page(ctx, task.JobID, url)
		if err != nil {
			return err
		}
		parsed, err := task.Extractor.ParseChapter(body)
		if err != nil {
			return err
		}
		text = parsed
		return nil
	}, func(n uint, err error) {
		metrics.ObserveAttemptFailure(variant, failureReason(err))
		logger.Warn("chapter attempt failed",
			zap.Uint("attempt", n+1),
			zap.Int("max_attempts", f.cfg.MaxAttempts),
			zap.Error(err),
		)
	})

	result := novel.ChapterResult{
		Index:    task.Index,
		Attempts: attempts,
		Elapsed:  f.clock.Now().Sub(start),
	}
	if err != nil {
		result.Err = fmt.Errorf("%w: chapter %d after %d attempts: %w",
			novel.ErrChapterUnavailable, task.Index+1, attempts, err)
		logger.Error("chapter unavailable", zap.Int("attempts", attempts), zap.Error(err))
		return result
	}
	result.Text = text
	return result
}

// TableOfContents fetches and parses the source's table of contents.
// Transport failures are retried; a malformed page is not.
func (f *ChapterFetcher) TableOfContents(ctx context.Context, jobID string, src novel.SourceRef, ex novel.Extractor) (novel.TOC, error) {
	var toc novel.TOC
	err := f.do(ctx, func() error {
		body, err := f.page(ctx, jobID, src.TOCURL)
		if err != nil {
			return err
		}
		parsed, err := ex.ParseTableOfContents(body)
		if err != nil {
			return retry.Unrecoverable(err)
		}
		toc = parsed
		return nil
	}, func(n uint, err error) {
		f.logger.Warn("table of contents attempt failed",
			zap.String("job_id", jobID),
			zap.String("url", src.TOCURL),
			zap.Uint("attempt", n+1),
			zap.Error(err),
		)
	})
	if err != nil {
		return novel.TOC{}, fmt.Errorf("table of contents %s: %w", src.TOCURL, err)
	}
	return toc, nil
}

func (f *ChapterFetcher) do(ctx context.Context, fn retry.RetryableFunc, onRetry retry.OnRetryFunc) error {
	err := retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(uint(f.cfg.MaxAttempts)),
		retry.DelayType(f.backoff.DelayType()),
		retry.LastErrorOnly(true),
		retry.OnRetry(onRetry),
	)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	return nil
}

// page waits out the politeness delay and the host limiter, then fetches url.
// Cancellation is unrecoverable so retry-go stops immediately.
func (f *ChapterFetcher) page(ctx context.Context, jobID, url string) ([]byte, error) {
	if err := pause(ctx, politeDelay(f.cfg.DelayMin, f.cfg.DelayMax)); err != nil {
		return nil, retry.Unrecoverable(err)
	}
	if f.limiter != nil {
		if _, err := f.limiter.Wait(ctx, url); err != nil {
			return nil, retry.Unrecoverable(err)
		}
	}
	resp, err := f.pages.Fetch(ctx, novel.FetchRequest{JobID: jobID, URL: url})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, retry.Unrecoverable(ctxErr)
		}
		return nil, fmt.Errorf("%w: %v", novel.ErrTransientFetch, err)
	}
	metrics.ObservePage(url, len(resp.Body))
	return resp.Body, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, novel.ErrTransientFetch):
		return "transport"
	case errors.Is(err, novel.ErrMalformedChapter):
		return "parse"
	default:
		return "other"
	}
}
