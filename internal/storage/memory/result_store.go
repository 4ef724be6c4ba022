// Package memory keeps assembled documents in process memory for development
// and tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/JakeFAU/novel-crawler/internal/novel"
	"github.com/JakeFAU/novel-crawler/internal/storage"
)

// ResultStore is an in-memory novel.ResultStore.
type ResultStore struct {
	mu   sync.RWMutex
	docs map[string]novel.Document
}

// NewResultStore creates an empty store.
func NewResultStore() *ResultStore {
	return &ResultStore{docs: make(map[string]novel.Document)}
}

// Get returns the document for jobID or novel.ErrNotFound.
func (s *ResultStore) Get(_ context.Context, jobID string) (novel.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[jobID]
	if !ok {
		return novel.Document{}, fmt.Errorf("document %s: %w", jobID, novel.ErrNotFound)
	}
	return clone(doc), nil
}

// Put stores doc unless a document already exists for its job id.
func (s *ResultStore) Put(_ context.Context, doc novel.Document) error {
	if err := storage.ValidateDocument(doc); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.JobID]; exists {
		return nil
	}
	s.docs[doc.JobID] = clone(doc)
	return nil
}

// Len reports the number of stored documents.
func (s *ResultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Close implements novel.ResultStore.
func (s *ResultStore) Close() error {
	return nil
}

func clone(doc novel.Document) novel.Document {
	doc.MissingChapters = slices.Clone(doc.MissingChapters)
	return doc
}
