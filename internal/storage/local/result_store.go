// Package local implements a filesystem-backed result store.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/novel-crawler/internal/novel"
	"github.com/JakeFAU/novel-crawler/internal/storage"
)

// Config captures the parameters for the local filesystem store.
type Config struct {
	// BaseDir is the root directory where documents will be stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// ResultStore writes one JSON file per job under BaseDir.
type ResultStore struct {
	baseDir string
}

// New creates the store, creating BaseDir when needed and checking it is writable.
func New(cfg Config) (*ResultStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, errors.New("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, errors.New("base directory path is not a directory")
	}

	probe, err := os.CreateTemp(cfg.BaseDir, ".writable-*")
	if err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	_ = probe.Close()
	if err := os.Remove(probe.Name()); err != nil {
		return nil, fmt.Errorf("failed to clean up probe file: %w", err)
	}

	return &ResultStore{baseDir: filepath.Clean(cfg.BaseDir)}, nil
}

// Get reads the document for jobID.
func (s *ResultStore) Get(_ context.Context, jobID string) (novel.Document, error) {
	if err := storage.ValidateJobID(jobID); err != nil {
		return novel.Document{}, fmt.Errorf("document %s: %w", jobID, novel.ErrNotFound)
	}
	data, err := os.ReadFile(s.path(jobID))
	if errors.Is(err, fs.ErrNotExist) {
		return novel.Document{}, fmt.Errorf("document %s: %w", jobID, novel.ErrNotFound)
	}
	if err != nil {
		return novel.Document{}, fmt.Errorf("read document %s: %w", jobID, err)
	}
	return storage.Decode(data)
}

// Put writes doc to a temporary file and hard-links it into place. The link
// fails if the document already exists, which keeps the first write.
func (s *ResultStore) Put(_ context.Context, doc novel.Document) error {
	if err := storage.ValidateDocument(doc); err != nil {
		return err
	}
	data, err := storage.Encode(doc)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.baseDir, "."+doc.JobID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Link(tmp.Name(), s.path(doc.JobID)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil
		}
		return fmt.Errorf("publish document %s: %w", doc.JobID, err)
	}
	return nil
}

// Close implements novel.ResultStore.
func (s *ResultStore) Close() error {
	return nil
}

func (s *ResultStore) path(jobID string) string {
	return filepath.Join(s.baseDir, storage.ObjectName("", jobID))
}
