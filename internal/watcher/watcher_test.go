package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semidex/semidex/internal/scanner"
)

func TestWatcher_DebouncesBurstIntoOneCallback(t *testing.T) {
	root := t.TempDir()
	sc := scanner.New(root, []string{"**/*.md"}, nil)

	w := New(root, sc, 50*time.Millisecond)
	var fired atomic.Int32
	w.OnChange = func() { fired.Add(1) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher a moment to register directories.
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("v"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return fired.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	// No further callbacks after the burst settles.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())

	cancel()
	require.NoError(t, <-done)
}

func TestWatcher_IgnoresNonMatchingFiles(t *testing.T) {
	root := t.TempDir()
	sc := scanner.New(root, []string{"**/*.md"}, nil)

	w := New(root, sc, 50*time.Millisecond)
	var fired atomic.Int32
	w.OnChange = func() { fired.Add(1) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("v"), 0o644))

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())

	cancel()
	require.NoError(t, <-done)
}
