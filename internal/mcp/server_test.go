package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semidex/semidex/internal/async"
	"github.com/semidex/semidex/internal/chunk"
	"github.com/semidex/semidex/internal/index"
	"github.com/semidex/semidex/internal/report"
	"github.com/semidex/semidex/internal/scanner"
	"github.com/semidex/semidex/internal/search"
	"github.com/semidex/semidex/internal/session"
	"github.com/semidex/semidex/internal/store"
)

type stubEmbedder struct {
	calls int
	block chan struct{}
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return []float32{1, float32(len(text) % 7)}, nil
}
func (s *stubEmbedder) Dimensions() int   { return 2 }
func (s *stubEmbedder) ModelName() string { return "stub-model" }
func (s *stubEmbedder) Close() error      { return nil }

func newTestServer(t *testing.T) (*Server, *stubEmbedder, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("hello semantic world"), 0o644))

	st := store.NewMemory(2)
	emb := &stubEmbedder{}
	rep, err := report.New(filepath.Join(t.TempDir(), "progress.jsonl"))
	require.NoError(t, err)

	indexer := index.New(st, emb, chunk.New(1000, 200, nil),
		scanner.New(root, []string{"**/*.md"}, nil), rep, index.Config{
			WorkspaceID: "ws-test",
			Root:        root,
			BatchDelay:  time.Millisecond,
		})
	runner := async.NewRunner(indexer)
	searcher := search.New(st, emb, search.Config{WorkspaceID: "ws-test", Root: root})
	cache, err := session.NewCache(10)
	require.NoError(t, err)

	srv, err := NewServer(indexer, runner, searcher, cache)
	require.NoError(t, err)
	return srv, emb, root
}

func waitIdle(t *testing.T, srv *Server) {
	t.Helper()
	require.Eventually(t, func() bool { return !srv.runner.IsRunning() }, 2*time.Second, time.Millisecond)
}

func TestUpdateIndexAndStatus(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ctx := context.Background()

	_, out, err := srv.updateIndexHandler(ctx, nil, UpdateIndexInput{ReindexAll: true})
	require.NoError(t, err)
	assert.True(t, out.Started)

	waitIdle(t, srv)
	require.NoError(t, srv.runner.LastError())

	_, status, err := srv.indexStatusHandler(ctx, nil, StatusInput{})
	require.NoError(t, err)
	assert.True(t, status.Status.Initialized)
	assert.Equal(t, 1, status.Status.IndexedFiles)
	assert.Equal(t, "stub-model", status.Status.EmbeddingModel)
	require.NotNil(t, status.Indexing)
	assert.Equal(t, index.EventComplete, status.Indexing.Type)
}

func TestSearchKnowledge_UsesSessionCache(t *testing.T) {
	srv, emb, _ := newTestServer(t)
	ctx := context.Background()

	_, out, err := srv.updateIndexHandler(ctx, nil, UpdateIndexInput{ReindexAll: true})
	require.NoError(t, err)
	require.True(t, out.Started)
	waitIdle(t, srv)

	embedsAfterIndex := emb.calls

	_, first, err := srv.searchKnowledgeHandler(ctx, nil, SearchInput{Query: "semantic", MinSimilarity: -1})
	require.NoError(t, err)
	require.NotEmpty(t, first.Results)
	assert.False(t, first.Cached)

	_, second, err := srv.searchKnowledgeHandler(ctx, nil, SearchInput{Query: "semantic", MinSimilarity: -1})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, embedsAfterIndex+1, emb.calls, "cached answer embeds the query only once")
}

func TestUpdateIndex_BusyDoesNotQueue(t *testing.T) {
	srv, emb, _ := newTestServer(t)
	ctx := context.Background()

	emb.block = make(chan struct{})
	_, first, err := srv.updateIndexHandler(ctx, nil, UpdateIndexInput{ReindexAll: true})
	require.NoError(t, err)
	require.True(t, first.Started)
	require.Eventually(t, srv.runner.IsRunning, time.Second, time.Millisecond)

	_, out, err := srv.updateIndexHandler(ctx, nil, UpdateIndexInput{})
	require.NoError(t, err)
	assert.False(t, out.Started)
	assert.True(t, out.Busy)

	close(emb.block)
	waitIdle(t, srv)
}

func TestReinitialize_InvalidatesCache(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ctx := context.Background()

	_, out, err := srv.updateIndexHandler(ctx, nil, UpdateIndexInput{ReindexAll: true})
	require.NoError(t, err)
	require.True(t, out.Started)
	waitIdle(t, srv)

	_, results, err := srv.searchKnowledgeHandler(ctx, nil, SearchInput{Query: "semantic", MinSimilarity: -1})
	require.NoError(t, err)
	require.NotEmpty(t, results.Results)
	require.Equal(t, 1, srv.cache.Len())

	_, reinit, err := srv.reinitializeHandler(ctx, nil, ReinitializeInput{})
	require.NoError(t, err)
	assert.True(t, reinit.Cleared)
	assert.Equal(t, 0, srv.cache.Len())

	_, status, err := srv.indexStatusHandler(ctx, nil, StatusInput{})
	require.NoError(t, err)
	assert.Equal(t, 0, status.Status.IndexedFiles)
}

func TestCancelIndexing_NotRunning(t *testing.T) {
	srv, _, _ := newTestServer(t)

	_, out, err := srv.cancelIndexingHandler(context.Background(), nil, CancelInput{})
	require.NoError(t, err)
	assert.False(t, out.WasRunning)
}
