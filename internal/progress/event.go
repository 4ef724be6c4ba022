package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobStart    Stage = "JOB_START"
	StageChapterDone Stage = "CHAPTER_DONE"
	StageJobDone     Stage = "JOB_DONE"
	StageJobError    Stage = "JOB_ERROR"
)

// Event captures a single milestone of a job.
type Event struct {
	// JobID is the resolved job id.
	JobID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Variant is the source site variant.
	Variant string
	// Chapter is the zero-based chapter index for CHAPTER_DONE.
	Chapter int
	// Completed and Total describe job progress after this event.
	Completed int
	Total     int
	// Attempts is the number of fetch attempts the chapter used.
	Attempts int
	// Bytes is the size of the chapter text.
	Bytes int64
	// Missing marks a chapter that exhausted its attempts.
	Missing bool
	// Dur is the chapter or job latency.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobDone, StageJobError:
	case StageChapterDone:
		if e.Chapter < 0 {
			return errors.New("chapter index must be >= 0")
		}
		if e.Total <= 0 {
			return errors.New("chapter done requires total")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
