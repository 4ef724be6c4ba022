// Package postgres provides Postgres-backed document and job run persistence.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/novel-crawler/internal/novel"
	"github.com/JakeFAU/novel-crawler/internal/storage"
)

const defaultTable = "documents"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for documents.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it.
type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// ResultStore persists documents as rows keyed by job id.
type ResultStore struct {
	pool  pool
	table string
}

// New connects a pgx pool and returns a ResultStore.
func New(ctx context.Context, cfg Config) (*ResultStore, error) {
	p, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := NewWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

func connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return p, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*ResultStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ResultStore{pool: p, table: table}, nil
}

// EnsureSchema creates the documents table when it does not exist.
func (s *ResultStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	job_id           TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	body             TEXT NOT NULL,
	variant          TEXT NOT NULL,
	source_url       TEXT NOT NULL,
	chapter_count    INTEGER NOT NULL,
	missing_chapters JSONB NOT NULL DEFAULT '[]'::jsonb,
	checksum         TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

// Put inserts doc. ON CONFLICT DO NOTHING keeps the first stored document.
func (s *ResultStore) Put(ctx context.Context, doc novel.Document) error {
	if err := storage.ValidateDocument(doc); err != nil {
		return err
	}
	missing := doc.MissingChapters
	if missing == nil {
		missing = []int{}
	}
	missingJSON, err := json.Marshal(missing)
	if err != nil {
		return fmt.Errorf("marshal missing chapters: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	job_id,
	title,
	body,
	variant,
	source_url,
	chapter_count,
	missing_chapters,
	checksum,
	created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
) ON CONFLICT (job_id) DO NOTHING`, s.table)

	args := []any{
		doc.JobID,
		doc.Title,
		doc.Text,
		string(doc.Variant),
		doc.SourceURL,
		doc.ChapterCount,
		missingJSON,
		doc.Checksum,
		doc.CreatedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// Get loads the document for jobID.
func (s *ResultStore) Get(ctx context.Context, jobID string) (novel.Document, error) {
	query := fmt.Sprintf(`
SELECT job_id, title, body, variant, source_url, chapter_count, missing_chapters, checksum, created_at
FROM %s
WHERE job_id = $1`, s.table)

	var (
		doc         novel.Document
		variant     string
		missingJSON []byte
	)
	err := s.pool.QueryRow(ctx, query, jobID).Scan(
		&doc.JobID,
		&doc.Title,
		&doc.Text,
		&variant,
		&doc.SourceURL,
		&doc.ChapterCount,
		&missingJSON,
		&doc.Checksum,
		&doc.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return novel.Document{}, fmt.Errorf("document %s: %w", jobID, novel.ErrNotFound)
	}
	if err != nil {
		return novel.Document{}, fmt.Errorf("select document: %w", err)
	}
	doc.Variant = novel.Variant(variant)
	if len(missingJSON) > 0 {
		if err := json.Unmarshal(missingJSON, &doc.MissingChapters); err != nil {
			return novel.Document{}, fmt.Errorf("unmarshal missing chapters: %w", err)
		}
		if len(doc.MissingChapters) == 0 {
			doc.MissingChapters = nil
		}
	}
	return doc, nil
}

// Ping checks connectivity for readiness probes.
func (s *ResultStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *ResultStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
