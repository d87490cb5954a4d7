package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchDebouncesChanges(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "pkg")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- New(nil).Watch(ctx, dir, 100*time.Millisecond, func() {
			changes <- struct{}{}
		})
	}()
	// Give the watcher time to register its directories.
	time.Sleep(100 * time.Millisecond)

	for i := 0; i < 3; i++ {
		writeFile(t, filepath.Join(nested, "agent.py"), "class A(PlanExecute):\n    pass\n")
	}
	writeFile(t, filepath.Join(nested, "notes.txt"), "ignored")

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}

	select {
	case <-changes:
		t.Fatal("burst should produce a single notification")
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watch did not stop on cancel")
	}
}

func TestWatchMissingDir(t *testing.T) {
	err := New(nil).Watch(context.Background(), filepath.Join(t.TempDir(), "missing"), 0, func() {})
	assert.Error(t, err)
}
