package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/novel-crawler/internal/progress"
	"github.com/JakeFAU/novel-crawler/internal/store"
)

// StoreSink persists job run history via a store.RunRepository. Chapter
// counters are collapsed per job to reduce write amplification.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume forwards job transitions in order, then applies the collapsed
// chapter counters. Repository errors are returned wrapped.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	deltas := make(map[string]*chapterDelta)
	var order []string

	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageJobStart, progress.StageJobDone, progress.StageJobError:
			if err := s.handleJobEvent(ctx, evt); err != nil {
				return err
			}
		case progress.StageChapterDone:
			d := deltas[evt.JobID]
			if d == nil {
				d = &chapterDelta{}
				deltas[evt.JobID] = d
				order = append(order, evt.JobID)
			}
			d.add(evt)
		}
	}

	for _, jobID := range order {
		d := deltas[jobID]
		if err := s.repo.AddChapters(ctx, jobID, d.done, d.missing, d.at); err != nil {
			return fmt.Errorf("add chapters: %w", err)
		}
	}
	return nil
}

func (s *StoreSink) handleJobEvent(ctx context.Context, evt progress.Event) error {
	switch evt.Stage {
	case progress.StageJobStart:
		if err := s.repo.UpsertJobStart(ctx, evt.JobID, evt.Variant, evt.TS); err != nil {
			return fmt.Errorf("upsert job start: %w", err)
		}
	case progress.StageJobDone:
		if err := s.repo.CompleteJob(ctx, evt.JobID, evt.TS, store.RunSuccess, nil); err != nil {
			return fmt.Errorf("complete job: %w", err)
		}
	case progress.StageJobError:
		var note *string
		if evt.Note != "" {
			note = &evt.Note
		}
		if err := s.repo.CompleteJob(ctx, evt.JobID, evt.TS, store.RunError, note); err != nil {
			return fmt.Errorf("complete job: %w", err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type chapterDelta struct {
	done    int
	missing int
	at      time.Time
}

func (d *chapterDelta) add(evt progress.Event) {
	d.done++
	if evt.Missing {
		d.missing++
	}
	if evt.TS.After(d.at) {
		d.at = evt.TS
	}
}
