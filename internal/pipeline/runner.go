// Package pipeline executes one job end to end: table of contents, bounded
// concurrent chapter fetches with retries, ordered assembly and storage.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/novel-crawler/internal/metrics"
	"github.com/JakeFAU/novel-crawler/internal/novel"
	"github.com/JakeFAU/novel-crawler/internal/progress"
)

var tracer = otel.Tracer("github.com/JakeFAU/novel-crawler/internal/pipeline")

// ExtractorSource resolves the extractor for a variant.
type ExtractorSource interface {
	Lookup(variant novel.Variant) (novel.Extractor, error)
}

// ProgressRecorder receives percent-complete updates for a job.
type ProgressRecorder interface {
	Record(id string, completed, total int)
	Finish(id string) bool
	Forget(id string)
}

// Deps lists the collaborators of a Runner. Events, Publisher and Logger are
// optional.
type Deps struct {
	Extractors ExtractorSource
	Chapters   *ChapterFetcher
	Pool       *Pool
	Assembler  *Assembler
	Store      novel.ResultStore
	Progress   ProgressRecorder
	Events     progress.Emitter
	Publisher  novel.Publisher
	Topic      string
	Clock      novel.Clock
	Logger     *zap.Logger
}

// Runner executes jobs.
type Runner struct {
	deps   Deps
	logger *zap.Logger
}

// NewRunner validates deps and returns a Runner.
func NewRunner(deps Deps) (*Runner, error) {
	switch {
	case deps.Extractors == nil:
		return nil, errors.New("pipeline: extractors are required")
	case deps.Chapters == nil:
		return nil, errors.New("pipeline: chapter fetcher is required")
	case deps.Pool == nil:
		return nil, errors.New("pipeline: pool is required")
	case deps.Assembler == nil:
		return nil, errors.New("pipeline: assembler is required")
	case deps.Store == nil:
		return nil, errors.New("pipeline: result store is required")
	case deps.Progress == nil:
		return nil, errors.New("pipeline: progress recorder is required")
	case deps.Clock == nil:
		return nil, errors.New("pipeline: clock is required")
	}
	if deps.Events == nil {
		deps.Events = progress.Nop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{deps: deps, logger: logger}, nil
}

// Run retrieves every chapter of job.Source, stores the assembled document
// and marks the job complete. Chapter failures degrade the document; a table
// of contents failure, cancellation or store failure fails the job.
func (r *Runner) Run(ctx context.Context, job novel.Job) (novel.Document, error) {
	src := job.Source
	start := r.deps.Clock.Now()
	ctx, span := tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(
		attribute.String("novel.job_id", job.ID),
		attribute.String("novel.variant", string(src.Variant)),
		attribute.String("novel.toc_url", src.TOCURL),
	))
	defer span.End()
	logger := r.logger.With(zap.String("job_id", job.ID), zap.String("variant", string(src.Variant)))
	r.emit(progress.Event{JobID: job.ID, Stage: progress.StageJobStart, Variant: string(src.Variant), Note: src.TOCURL})

	// Once progress has been recorded the entry stays, so a failure never
	// lowers what a polling client has already seen.
	recorded := false
	fail := func(err error) (novel.Document, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !recorded {
			r.deps.Progress.Forget(job.ID)
		}
		r.emit(progress.Event{
			JobID:   job.ID,
			Stage:   progress.StageJobError,
			Variant: string(src.Variant),
			Dur:     r.deps.Clock.Now().Sub(start),
			Note:    err.Error(),
		})
		logger.Error("job failed", zap.Error(err))
		return novel.Document{}, err
	}

	ex, err := r.deps.Extractors.Lookup(src.Variant)
	if err != nil {
		return fail(err)
	}
	toc, err := r.deps.Chapters.TableOfContents(ctx, job.ID, src, ex)
	if err != nil {
		return fail(err)
	}
	total := toc.ChapterCount
	logger.Info("table of contents parsed", zap.String("title", toc.Title), zap.Int("chapters", total))
	span.SetAttributes(attribute.Int("novel.chapters", total))
	r.deps.Progress.Record(job.ID, 0, total)
	recorded = true

	completed := 0
	results := r.deps.Pool.Run(ctx, total,
		func(ctx context.Context, index int) novel.ChapterResult {
			return r.deps.Chapters.Fetch(ctx, ChapterTask{JobID: job.ID, Source: src, Extractor: ex, Index: index})
		},
		func(res novel.ChapterResult) {
			completed++
			r.deps.Progress.Record(job.ID, completed, total)
			outcome := metrics.ChapterOK
			if res.Missing() {
				outcome = metrics.ChapterMissing
			}
			metrics.ObserveChapter(string(src.Variant), outcome)
			r.emit(progress.Event{
				JobID:     job.ID,
				Stage:     progress.StageChapterDone,
				Variant:   string(src.Variant),
				Chapter:   res.Index,
				Completed: completed,
				Total:     total,
				Attempts:  res.Attempts,
				Bytes:     int64(len(res.Text)),
				Missing:   res.Missing(),
				Dur:       res.Elapsed,
			})
		},
	)
	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("job interrupted: %w", err))
	}

	doc, err := r.deps.Assembler.Assemble(src, toc.Title, results)
	if err != nil {
		return fail(err)
	}
	if err := r.deps.Store.Put(ctx, doc); err != nil {
		return fail(fmt.Errorf("store document: %w", err))
	}
	r.deps.Progress.Finish(job.ID)

	if len(doc.MissingChapters) > 0 {
		logger.Warn("document assembled with missing chapters", zap.Ints("missing", doc.MissingChapters))
	}
	r.publish(ctx, doc, logger)

	span.SetAttributes(attribute.Int("novel.missing_chapters", len(doc.MissingChapters)))
	elapsed := r.deps.Clock.Now().Sub(start)
	r.emit(progress.Event{
		JobID:     job.ID,
		Stage:     progress.StageJobDone,
		Variant:   string(src.Variant),
		Completed: completed,
		Total:     total,
		Bytes:     int64(len(doc.Text)),
		Dur:       elapsed,
	})
	logger.Info("job complete",
		zap.String("title", doc.Title),
		zap.Int("chapters", total),
		zap.Int("missing", len(doc.MissingChapters)),
		zap.Duration("elapsed", elapsed),
	)
	return doc, nil
}

func (r *Runner) publish(ctx context.Context, doc novel.Document, logger *zap.Logger) {
	if r.deps.Publisher == nil {
		return
	}
	msgID, err := r.deps.Publisher.Publish(ctx, r.deps.Topic, novel.Completion{
		JobID:           doc.JobID,
		Title:           doc.Title,
		Variant:         doc.Variant,
		SourceURL:       doc.SourceURL,
		ChapterCount:    doc.ChapterCount,
		MissingChapters: doc.MissingChapters,
		Checksum:        doc.Checksum,
		CompletedAt:     doc.CreatedAt,
	})
	if err != nil {
		logger.Warn("publish completion failed", zap.Error(err))
		return
	}
	logger.Debug("completion published", zap.String("message_id", msgID))
}

func (r *Runner) emit(evt progress.Event) {
	if evt.TS.IsZero() {
		evt.TS = r.deps.Clock.Now()
	}
	r.deps.Events.Emit(evt)
}
