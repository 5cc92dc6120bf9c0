package usagelog

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/llmrouter/pkg/models"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "usage.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSinceMissingFile(t *testing.T) {
	s := newTestStore(t)
	recs, err := s.Since(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestAppendAndSince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	old := models.UsageRecord{ID: "a", Timestamp: now.Add(-48 * time.Hour), Model: "gpt-4o", Provider: models.ProviderOpenAI, Cost: 1}
	recent := models.UsageRecord{ID: "b", Timestamp: now, Model: "llama3.2", Provider: models.ProviderOllama, InputTokens: 10, OutputTokens: 5, ProjectID: "p1"}
	require.NoError(t, s.Append(ctx, old))
	require.NoError(t, s.Append(ctx, recent))

	all, err := s.Since(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)

	got, err := s.Since(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "p1", got[0].ProjectID)
	assert.Equal(t, 15, got[0].TotalTokens())
}

func TestSinceSkipsCorruptLines(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, models.UsageRecord{ID: "ok", Timestamp: time.Now().UTC()}))

	f, err := os.OpenFile(s.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	recs, err := s.Since(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "ok", recs[0].ID)
}

func TestConcurrentAppends(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Append(ctx, models.UsageRecord{Timestamp: time.Now().UTC(), Model: "m", InputTokens: i})
		}()
	}
	wg.Wait()

	recs, err := s.Since(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, recs, 50)
}

func TestNewFileStoreEmptyPath(t *testing.T) {
	_, err := NewFileStore("")
	assert.Error(t, err)
}
