// Package postgres implements usagelog.Store on PostgreSQL for deployments
// where several router processes share one organization-wide log.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/pario-ai/llmrouter/pkg/models"
	"github.com/pario-ai/llmrouter/pkg/usagelog"
)

var _ usagelog.Store = (*Store)(nil)

const createTable = `
CREATE TABLE IF NOT EXISTS usage_records (
	id UUID PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	model TEXT NOT NULL,
	provider TEXT NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cached_tokens INTEGER NOT NULL DEFAULT 0,
	cost DOUBLE PRECISION NOT NULL,
	task_type TEXT NOT NULL DEFAULT '',
	project_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_usage_created ON usage_records(created_at);
`

const insertRecord = `
	INSERT INTO usage_records (id, created_at, model, provider, input_tokens, output_tokens, cached_tokens, cost, task_type, project_id)
	VALUES (:id, :created_at, :model, :provider, :input_tokens, :output_tokens, :cached_tokens, :cost, :task_type, :project_id)
`

const selectSince = `
	SELECT id, created_at, model, provider, input_tokens, output_tokens, cached_tokens, cost, task_type, project_id
	FROM usage_records
	WHERE created_at >= $1
	ORDER BY created_at ASC
`

// Store records usage in a PostgreSQL table.
type Store struct {
	db *sqlx.DB
}

// Open connects to dsn and runs the schema migration.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect usage db: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection. Callers own migration.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the usage table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("migrate usage db: %w", err)
	}
	return nil
}

// Append inserts one usage record.
func (s *Store) Append(ctx context.Context, rec models.UsageRecord) error {
	rec.Timestamp = rec.Timestamp.UTC()
	if _, err := s.db.NamedExecContext(ctx, insertRecord, rec); err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// Since returns records created at or after since, oldest first.
func (s *Store) Since(ctx context.Context, since time.Time) ([]models.UsageRecord, error) {
	var records []models.UsageRecord
	if err := s.db.SelectContext(ctx, &records, selectSince, since.UTC()); err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	for i := range records {
		records[i].Timestamp = records[i].Timestamp.UTC()
	}
	return records, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
