package novel

import "errors"

var (
	// ErrInvalidReference is returned when a user reference cannot be resolved
	// to a supported source.
	ErrInvalidReference = errors.New("invalid source reference")
	// ErrTransientFetch marks a fetch attempt that may succeed when retried.
	ErrTransientFetch = errors.New("transient fetch failure")
	// ErrChapterUnavailable is recorded when a chapter exhausted its attempts.
	ErrChapterUnavailable = errors.New("chapter unavailable")
	// ErrMalformedToc is returned when the table of contents lacks a title or chapters.
	ErrMalformedToc = errors.New("malformed table of contents")
	// ErrMalformedChapter is returned when a chapter page has no body.
	ErrMalformedChapter = errors.New("malformed chapter page")
	// ErrNotFound is returned by stores when no document exists for a job id.
	ErrNotFound = errors.New("not found")
	// ErrQueueClosed is returned once the job queue has shut down.
	ErrQueueClosed = errors.New("queue closed")
)
