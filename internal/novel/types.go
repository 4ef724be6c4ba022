// Package novel defines the core types shared across the fetch pipeline.
package novel

import (
	"net/http"
	"time"
)

// Variant names the source site layout a reference resolves to.
type Variant string

// Supported source variants.
const (
	VariantHameln Variant = "hameln"
	VariantNarou  Variant = "narou"
)

// JobStatus represents the lifecycle state of a fetch job.
type JobStatus string

// Job status values.
const (
	JobStatusPending  JobStatus = "pending"
	JobStatusRunning  JobStatus = "running"
	JobStatusComplete JobStatus = "complete"
	JobStatusFailed   JobStatus = "failed"
)

// SourceRef is a resolved user reference: the stable job id, the site variant
// and the canonical table-of-contents URL.
type SourceRef struct {
	ID      string  `json:"id"`
	Variant Variant `json:"variant"`
	TOCURL  string  `json:"toc_url"`
	Input   string  `json:"input,omitempty"`
}

// Job tracks one request to retrieve and assemble a document.
type Job struct {
	ID           string     `json:"id"`
	Source       SourceRef  `json:"source"`
	Status       JobStatus  `json:"status"`
	Title        string     `json:"title,omitempty"`
	ChapterCount int        `json:"chapter_count"`
	Submitted    time.Time  `json:"submitted_at"`
	Started      *time.Time `json:"started_at,omitempty"`
	Finished     *time.Time `json:"finished_at,omitempty"`
	ErrorText    string     `json:"error_text,omitempty"`
}

// TOC is the parsed table of contents of a source.
type TOC struct {
	Title        string
	ChapterCount int
}

// ChapterResult is the outcome of fetching one chapter. Index is zero-based.
type ChapterResult struct {
	Index    int
	Text     string
	Attempts int
	Elapsed  time.Duration
	Err      error
}

// Missing reports whether the chapter should be skipped during assembly.
func (r ChapterResult) Missing() bool {
	return r.Err != nil || r.Text == ""
}

// Document is the assembled, stored result of a completed job.
type Document struct {
	JobID           string    `json:"job_id"`
	Title           string    `json:"title"`
	Text            string    `json:"text"`
	Variant         Variant   `json:"variant"`
	SourceURL       string    `json:"source_url"`
	ChapterCount    int       `json:"chapter_count"`
	MissingChapters []int     `json:"missing_chapters,omitempty"`
	Checksum        string    `json:"checksum"`
	CreatedAt       time.Time `json:"created_at"`
}

// FetchRequest captures everything needed to fetch a page.
type FetchRequest struct {
	JobID   string
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a PageFetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// QueueItem wraps a job admitted for execution.
type QueueItem struct {
	Job       Job
	Submitted int64
}

// Completion is published once a document has been stored.
type Completion struct {
	JobID           string    `json:"job_id"`
	Title           string    `json:"title"`
	Variant         Variant   `json:"variant"`
	SourceURL       string    `json:"source_url"`
	ChapterCount    int       `json:"chapter_count"`
	MissingChapters []int     `json:"missing_chapters,omitempty"`
	Checksum        string    `json:"checksum"`
	CompletedAt     time.Time `json:"completed_at"`
}
