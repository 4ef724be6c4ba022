// Package gcs provides a result store backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/JakeFAU/novel-crawler/internal/novel"
	docstore "github.com/JakeFAU/novel-crawler/internal/storage"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	Prefix string
}

// ResultStore keeps one JSON object per job in a bucket.
type ResultStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed result store. The store owns client and closes it.
func New(client *storage.Client, cfg Config) (*ResultStore, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("bucket name is required")
	}
	return &ResultStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Get downloads and decodes the document for jobID.
func (s *ResultStore) Get(ctx context.Context, jobID string) (novel.Document, error) {
	if err := docstore.ValidateJobID(jobID); err != nil {
		return novel.Document{}, fmt.Errorf("document %s: %w", jobID, novel.ErrNotFound)
	}
	reader, err := s.object(jobID).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return novel.Document{}, fmt.Errorf("document %s: %w", jobID, novel.ErrNotFound)
	}
	if err != nil {
		return novel.Document{}, fmt.Errorf("open object: %w", err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return novel.Document{}, fmt.Errorf("read object: %w", err)
	}
	return docstore.Decode(data)
}

// Put uploads doc with a does-not-exist precondition, so only the first
// writer for a job id succeeds; later writers are treated as no-ops.
func (s *ResultStore) Put(ctx context.Context, doc novel.Document) error {
	if err := docstore.ValidateDocument(doc); err != nil {
		return err
	}
	data, err := docstore.Encode(doc)
	if err != nil {
		return err
	}

	writer := s.object(doc.JobID).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = "application/json"
	writer.Metadata = map[string]string{
		"title":    doc.Title,
		"variant":  string(doc.Variant),
		"checksum": doc.Checksum,
	}
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			return nil
		}
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *ResultStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close gcs client: %w", err)
	}
	return nil
}

// URI returns the gs:// location of the document for jobID.
func (s *ResultStore) URI(jobID string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, docstore.ObjectName(s.prefix, jobID))
}

func (s *ResultStore) object(jobID string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(docstore.ObjectName(s.prefix, jobID))
}

func isPreconditionFailed(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed
}
