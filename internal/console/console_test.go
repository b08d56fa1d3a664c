package console

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semidex/semidex/internal/async"
	"github.com/semidex/semidex/internal/chunk"
	"github.com/semidex/semidex/internal/index"
	"github.com/semidex/semidex/internal/report"
	"github.com/semidex/semidex/internal/scanner"
	"github.com/semidex/semidex/internal/session"
	"github.com/semidex/semidex/internal/store"
)

type consoleEmbedder struct{ block chan struct{} }

func (e *consoleEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return []float32{1, 0}, nil
}
func (e *consoleEmbedder) Dimensions() int   { return 2 }
func (e *consoleEmbedder) ModelName() string { return "test-model" }
func (e *consoleEmbedder) Close() error      { return nil }

func newTestConsole(t *testing.T, emb *consoleEmbedder) (*Console, *async.Runner) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("doc content"), 0o644))

	rep, err := report.New(filepath.Join(t.TempDir(), "progress.jsonl"))
	require.NoError(t, err)

	indexer := index.New(store.NewMemory(2), emb, chunk.New(1000, 200, nil),
		scanner.New(root, []string{"**/*.md"}, nil), rep, index.Config{
			WorkspaceID: "ws-test",
			Root:        root,
			BatchDelay:  time.Millisecond,
		})
	runner := async.NewRunner(indexer)
	cache, err := session.NewCache(10)
	require.NoError(t, err)

	return New("127.0.0.1:0", indexer, runner, rep, cache), runner
}

func doJSON(t *testing.T, c *Console, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)
	return rec
}

func TestConsole_StatusEndpoint(t *testing.T) {
	c, _ := newTestConsole(t, &consoleEmbedder{})

	rec := doJSON(t, c, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Status index.Status `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, 1, payload.Status.TotalFiles)
	assert.False(t, payload.Status.Initialized)
}

func TestConsole_IndexAndProgress(t *testing.T) {
	c, runner := newTestConsole(t, &consoleEmbedder{})

	rec := doJSON(t, c, http.MethodPost, "/api/index", `{"reindex_all": true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool { return !runner.IsRunning() }, 2*time.Second, time.Millisecond)
	require.NoError(t, runner.LastError())

	rec = doJSON(t, c, http.MethodGet, "/api/progress?limit=50", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var progress struct {
		Events []report.Record `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &progress))
	require.NotEmpty(t, progress.Events)
	assert.Equal(t, "complete", progress.Events[len(progress.Events)-1].Type)
}

func TestConsole_BusyReturns409(t *testing.T) {
	emb := &consoleEmbedder{block: make(chan struct{})}
	c, runner := newTestConsole(t, emb)

	rec := doJSON(t, c, http.MethodPost, "/api/index", `{"reindex_all": true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, runner.IsRunning, time.Second, time.Millisecond)

	rec = doJSON(t, c, http.MethodPost, "/api/index", `{}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(emb.block)
	require.Eventually(t, func() bool { return !runner.IsRunning() }, 2*time.Second, time.Millisecond)
}

func TestConsole_CancelEndpoint(t *testing.T) {
	emb := &consoleEmbedder{block: make(chan struct{})}
	c, runner := newTestConsole(t, emb)

	doJSON(t, c, http.MethodPost, "/api/index", `{"reindex_all": true}`)
	require.Eventually(t, runner.IsRunning, time.Second, time.Millisecond)

	rec := doJSON(t, c, http.MethodPost, "/api/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"was_running":true`)

	close(emb.block)
	require.Eventually(t, func() bool { return !runner.IsRunning() }, 2*time.Second, time.Millisecond)
}

func TestConsole_Reinitialize(t *testing.T) {
	c, runner := newTestConsole(t, &consoleEmbedder{})

	doJSON(t, c, http.MethodPost, "/api/index", `{"reindex_all": true}`)
	require.Eventually(t, func() bool { return !runner.IsRunning() }, 2*time.Second, time.Millisecond)

	rec := doJSON(t, c, http.MethodPost, "/api/reinitialize", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, c, http.MethodGet, "/api/status", "")
	var payload struct {
		Status index.Status `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, 0, payload.Status.IndexedFiles)
}

func TestConsole_HomePage(t *testing.T) {
	c, _ := newTestConsole(t, &consoleEmbedder{})

	rec := doJSON(t, c, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "semidex")
}
