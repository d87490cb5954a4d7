package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensymbolicai/opensymbolicai-cli/internal/logging"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:", logging.New(nil, "silent"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

type listerFunc func(ctx context.Context) ([]string, error)

func (f listerFunc) ListModels(ctx context.Context) ([]string, error) { return f(ctx) }

// --- DB/Migration tests ---

func TestOpen_InMemory(t *testing.T) {
	db := testDB(t)
	assert.NotNil(t, db.SQL())
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "models.db")
	db, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	assert.FileExists(t, path)
}

func TestMigrations_Idempotent(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.migrate())

	var count int
	require.NoError(t, db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(migrations), count)

	var name string
	require.NoError(t, db.sql.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='model_cache'",
	).Scan(&name))
}

// --- Model cache tests ---

func TestModelCache_PutGet(t *testing.T) {
	cache := NewModelCache(testDB(t))

	_, ok := cache.Get("groq")
	assert.False(t, ok)

	require.NoError(t, cache.Put("groq", []string{"a", "b"}))
	models, ok := cache.Get("groq")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, models)

	require.NoError(t, cache.Put("groq", []string{"c"}))
	models, _ = cache.Get("groq")
	assert.Equal(t, []string{"c"}, models)

	require.NoError(t, cache.Put("ollama", nil))
	models, ok = cache.Get("ollama")
	assert.True(t, ok)
	assert.Empty(t, models)
}

func TestModelCache_ExpiresAtDayBoundary(t *testing.T) {
	cache := NewModelCache(testDB(t))
	day := time.Date(2025, 3, 1, 23, 59, 0, 0, time.Local)
	cache.now = func() time.Time { return day }

	require.NoError(t, cache.Put("openai", []string{"gpt-4o"}))
	_, ok := cache.Get("openai")
	assert.True(t, ok)

	day = day.Add(2 * time.Minute)
	_, ok = cache.Get("openai")
	assert.False(t, ok, "entries from yesterday are stale")
}

func TestModelCache_Clear(t *testing.T) {
	cache := NewModelCache(testDB(t))
	require.NoError(t, cache.Put("a", []string{"1"}))
	require.NoError(t, cache.Put("b", []string{"2"}))

	require.NoError(t, cache.Clear("a"))
	_, ok := cache.Get("a")
	assert.False(t, ok)
	_, ok = cache.Get("b")
	assert.True(t, ok)

	require.NoError(t, cache.Clear(""))
	_, ok = cache.Get("b")
	assert.False(t, ok)
}

func TestModelCache_Models(t *testing.T) {
	cache := NewModelCache(testDB(t))
	calls := 0
	lister := listerFunc(func(context.Context) ([]string, error) {
		calls++
		return []string{"m1", "m2"}, nil
	})
	ctx := context.Background()

	models, err := cache.Models(ctx, "fireworks", lister, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, models)

	_, err = cache.Models(ctx, "fireworks", lister, false)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second call is served from the cache")

	_, err = cache.Models(ctx, "fireworks", lister, true)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "refresh bypasses the cache")
}

func TestModelCache_ModelsErrors(t *testing.T) {
	cache := NewModelCache(testDB(t))
	ctx := context.Background()

	_, err := cache.Models(ctx, "nope", nil, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider: nope")

	boom := errors.New("GROQ_API_KEY not set")
	_, err = cache.Models(ctx, "groq", listerFunc(func(context.Context) ([]string, error) {
		return nil, boom
	}), false)
	assert.ErrorIs(t, err, boom)
	_, ok := cache.Get("groq")
	assert.False(t, ok, "failures are not cached")
}
