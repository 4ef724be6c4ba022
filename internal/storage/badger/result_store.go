// Package badger provides an embedded result store backed by BadgerDB.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/JakeFAU/novel-crawler/internal/novel"
	"github.com/JakeFAU/novel-crawler/internal/storage"
)

const keyPrefix = "doc:"

// Config selects the database location. InMemory ignores Path.
type Config struct {
	Path     string `mapstructure:"path"`
	InMemory bool   `mapstructure:"in_memory"`
}

// ResultStore persists documents in a local Badger database.
type ResultStore struct {
	db *badger.DB
}

// Open opens (creating if needed) the database described by cfg.
func Open(cfg Config, logger *zap.Logger) (*ResultStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, errors.New("badger path is required")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLogger(zapLogger{logger.Named("badger").Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &ResultStore{db: db}, nil
}

// Get reads the document for jobID.
func (s *ResultStore) Get(_ context.Context, jobID string) (novel.Document, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(jobID))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return novel.Document{}, fmt.Errorf("document %s: %w", jobID, novel.ErrNotFound)
	}
	if err != nil {
		return novel.Document{}, fmt.Errorf("read document %s: %w", jobID, err)
	}
	return storage.Decode(data)
}

// Put writes doc unless the key already exists. A transaction conflict means
// a concurrent writer stored the document first.
func (s *ResultStore) Put(_ context.Context, doc novel.Document) error {
	if err := storage.ValidateDocument(doc); err != nil {
		return err
	}
	data, err := storage.Encode(doc)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key(doc.JobID))
		switch {
		case err == nil:
			return nil
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(key(doc.JobID), data)
	})
	if errors.Is(err, badger.ErrConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("write document %s: %w", doc.JobID, err)
	}
	return nil
}

// Close flushes and closes the database.
func (s *ResultStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close badger database: %w", err)
	}
	return nil
}

func key(jobID string) []byte {
	return []byte(keyPrefix + jobID)
}

// zapLogger adapts a sugared zap logger to badger.Logger.
type zapLogger struct {
	s *zap.SugaredLogger
}

func (l zapLogger) Errorf(format string, args ...any)   { l.s.Errorf(format, args...) }
func (l zapLogger) Warningf(format string, args ...any) { l.s.Warnf(format, args...) }
func (l zapLogger) Infof(format string, args ...any)    { l.s.Debugf(format, args...) }
func (l zapLogger) Debugf(format string, args ...any)   { l.s.Debugf(format, args...) }
