package novel

import (
	"context"
	"time"
)

// PageFetcher retrieves a single page and returns its body plus metadata.
type PageFetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Extractor turns raw pages of one site variant into structured data.
type Extractor interface {
	Variant() Variant
	ParseTableOfContents(page []byte) (TOC, error)
	ParseChapter(page []byte) (string, error)
	// ChapterURL returns the page URL for the zero-based chapter index.
	ChapterURL(src SourceRef, index int) string
}

// ResultStore persists assembled documents. Put is write-once per job id:
// a Put for an id that already holds a document succeeds without changing it.
type ResultStore interface {
	Get(ctx context.Context, jobID string) (Document, error)
	Put(ctx context.Context, doc Document) error
	Close() error
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for admitted jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Limiter blocks until a request to url may proceed.
type Limiter interface {
	Wait(ctx context.Context, url string) (time.Duration, error)
}

// Hasher computes digests for document integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
