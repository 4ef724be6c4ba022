package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/novel-crawler/internal/progress"
)

// LogSink writes one structured log line per event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch. Chapter events log at debug level.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("job_id", evt.JobID),
			zap.String("stage", string(evt.Stage)),
			zap.String("variant", evt.Variant),
			zap.Int("completed", evt.Completed),
			zap.Int("total", evt.Total),
			zap.Duration("dur", evt.Dur),
		}
		switch evt.Stage {
		case progress.StageChapterDone:
			fields = append(fields,
				zap.Int("chapter", evt.Chapter),
				zap.Int("attempts", evt.Attempts),
				zap.Int64("bytes", evt.Bytes),
				zap.Bool("missing", evt.Missing),
			)
			s.logger.Debug("progress event", fields...)
		case progress.StageJobError:
			s.logger.Warn("progress event", append(fields, zap.String("note", evt.Note))...)
		default:
			if evt.Note != "" {
				fields = append(fields, zap.String("note", evt.Note))
			}
			s.logger.Info("progress event", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
