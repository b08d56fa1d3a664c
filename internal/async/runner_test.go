package async

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semidex/semidex/internal/chunk"
	"github.com/semidex/semidex/internal/index"
	"github.com/semidex/semidex/internal/ragerr"
	"github.com/semidex/semidex/internal/report"
	"github.com/semidex/semidex/internal/scanner"
	"github.com/semidex/semidex/internal/store"
)

// blockingEmbedder gates embedding on a channel so tests control run
// duration.
type blockingEmbedder struct {
	release chan struct{}
}

func (b *blockingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if b.release != nil {
		select {
		case <-b.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return []float32{1, 0}, nil
}

func (b *blockingEmbedder) Dimensions() int   { return 2 }
func (b *blockingEmbedder) ModelName() string { return "fake-model" }
func (b *blockingEmbedder) Close() error      { return nil }

func newRunner(t *testing.T, emb *blockingEmbedder) (*Runner, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("content"), 0o644))

	rep, err := report.New(filepath.Join(t.TempDir(), "progress.jsonl"))
	require.NoError(t, err)

	eng := index.New(store.NewMemory(2), emb, chunk.New(1000, 200, nil),
		scanner.New(root, []string{"**/*.md"}, nil), rep, index.Config{
			WorkspaceID: "ws-test",
			Root:        root,
			BatchDelay:  time.Millisecond,
		})
	return NewRunner(eng), root
}

func TestRunner_StartAndFinish(t *testing.T) {
	r, _ := newRunner(t, &blockingEmbedder{})

	var finished sync.WaitGroup
	finished.Add(1)
	r.OnFinish = func(err error) {
		assert.NoError(t, err)
		finished.Done()
	}

	require.NoError(t, r.Start(context.Background(), index.Options{ReindexAll: true}))
	finished.Wait()

	assert.False(t, r.IsRunning())
	require.NotNil(t, r.LastEvent())
	assert.Equal(t, index.EventComplete, r.LastEvent().Type)
}

func TestRunner_SecondStartIsBusy(t *testing.T) {
	emb := &blockingEmbedder{release: make(chan struct{})}
	r, _ := newRunner(t, emb)

	require.NoError(t, r.Start(context.Background(), index.Options{ReindexAll: true}))
	require.Eventually(t, r.IsRunning, time.Second, time.Millisecond)

	err := r.Start(context.Background(), index.Options{})
	require.Error(t, err)
	assert.Equal(t, ragerr.KindBusy, ragerr.KindOf(err))

	close(emb.release)
	require.Eventually(t, func() bool { return !r.IsRunning() }, time.Second, time.Millisecond)
}

func TestRunner_Cancel(t *testing.T) {
	emb := &blockingEmbedder{release: make(chan struct{})}
	r, _ := newRunner(t, emb)

	require.NoError(t, r.Start(context.Background(), index.Options{ReindexAll: true}))
	require.Eventually(t, r.IsRunning, time.Second, time.Millisecond)

	r.Cancel()
	close(emb.release)

	require.Eventually(t, func() bool { return !r.IsRunning() }, time.Second, time.Millisecond)
	require.NotNil(t, r.LastEvent())
	assert.Equal(t, index.EventCancelled, r.LastEvent().Type)
	assert.NoError(t, r.LastError(), "cancellation is not a failure")
}
