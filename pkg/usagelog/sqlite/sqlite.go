// Package sqlite implements usagelog.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/llmrouter/pkg/models"
	"github.com/pario-ai/llmrouter/pkg/usagelog"
)

var _ usagelog.Store = (*Store)(nil)

// Store records usage in a SQLite table. Timestamps are stored as UTC
// nanoseconds so range scans compare integers.
type Store struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS usage_records (
	id TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	model TEXT NOT NULL,
	provider TEXT NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cost REAL NOT NULL,
	task_type TEXT NOT NULL DEFAULT '',
	project_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_usage_created ON usage_records(created_at);
`

// New opens the database at dbPath and runs auto-migration.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open usage db: %w", err)
	}
	// One writer keeps appends serialized without SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate usage db: %w", err)
	}

	// cached_tokens arrived after the first schema.
	if !columnExists(db, "usage_records", "cached_tokens") {
		if _, err := db.Exec(`ALTER TABLE usage_records ADD COLUMN cached_tokens INTEGER NOT NULL DEFAULT 0`); err != nil {
			db.Close()
			return nil, fmt.Errorf("add cached_tokens column: %w", err)
		}
	}

	return &Store{db: db}, nil
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()
	for rows.Next() {
		var cid, notnull, pk int
		var name, ctype string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false
		}
		if name == column {
			return true
		}
	}
	return false
}

// Append inserts one usage record.
func (s *Store) Append(ctx context.Context, rec models.UsageRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_records (id, created_at, model, provider, input_tokens, output_tokens, cached_tokens, cost, task_type, project_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp.UTC().UnixNano(), rec.Model, string(rec.Provider),
		rec.InputTokens, rec.OutputTokens, rec.CachedTokens, rec.Cost, rec.TaskType, rec.ProjectID,
	)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// Since returns records created at or after since, oldest first.
func (s *Store) Since(ctx context.Context, since time.Time) ([]models.UsageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, model, provider, input_tokens, output_tokens, cached_tokens, cost, task_type, project_id
		 FROM usage_records WHERE created_at >= ? ORDER BY created_at ASC`,
		unixNano(since),
	)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var records []models.UsageRecord
	for rows.Next() {
		var r models.UsageRecord
		var ts int64
		var provider string
		if err := rows.Scan(&r.ID, &ts, &r.Model, &provider, &r.InputTokens, &r.OutputTokens, &r.CachedTokens, &r.Cost, &r.TaskType, &r.ProjectID); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		r.Timestamp = time.Unix(0, ts).UTC()
		r.Provider = models.Provider(provider)
		records = append(records, r)
	}
	return records, rows.Err()
}

// unixNano is time.UnixNano with out-of-range times clamped, so a zero
// time.Time means "from the beginning".
func unixNano(t time.Time) int64 {
	if t.Before(minTime) {
		return math.MinInt64
	}
	return t.UTC().UnixNano()
}

var minTime = time.Unix(0, math.MinInt64)

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
