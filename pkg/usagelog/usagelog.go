// Package usagelog defines the append-only usage record store and a
// newline-delimited JSON file implementation of it.
package usagelog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pario-ai/llmrouter/pkg/models"
)

// Store is an append-only sequence of usage records.
type Store interface {
	// Append durably stores one record.
	Append(ctx context.Context, rec models.UsageRecord) error
	// Since returns records with Timestamp >= since, oldest first.
	Since(ctx context.Context, since time.Time) ([]models.UsageRecord, error)
	// Close releases resources.
	Close() error
}

// maxLine bounds a single serialized record when scanning.
const maxLine = 1 << 20

// FileStore implements Store as a JSONL file. Each Append is one write of one
// line followed by an fsync, so a crash never leaves a partial multi-record batch.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a FileStore for path, creating parent directories.
// The file itself is created lazily on first Append.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("usage log path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create usage log dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Path returns the file backing the store.
func (s *FileStore) Path() string { return s.path }

// Append writes rec as a single JSON line.
func (s *FileStore) Append(ctx context.Context, rec models.UsageRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode usage record: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open usage log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("append usage record: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync usage log: %w", err)
	}
	return f.Close()
}

// Since scans the file and returns records at or after since. A missing file
// yields no records and no error. Lines that fail to decode are skipped.
func (s *FileStore) Since(ctx context.Context, since time.Time) ([]models.UsageRecord, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open usage log: %w", err)
	}
	defer f.Close()

	var records []models.UsageRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec models.UsageRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if rec.Timestamp.Before(since) {
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan usage log: %w", err)
	}
	return records, nil
}

// Close is a no-op; the file is opened per operation.
func (s *FileStore) Close() error { return nil }
