// Package console serves the operator-facing HTTP surface: progress
// visibility and manual index operations.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/semidex/semidex/internal/async"
	"github.com/semidex/semidex/internal/index"
	"github.com/semidex/semidex/internal/ragerr"
	"github.com/semidex/semidex/internal/report"
	"github.com/semidex/semidex/internal/session"
)

// Console is the HTTP server for operators.
type Console struct {
	indexer  *index.Engine
	runner   *async.Runner
	reporter *report.Reporter
	cache    *session.Cache
	server   *http.Server
}

// New creates a Console bound to addr.
func New(addr string, indexer *index.Engine, runner *async.Runner, reporter *report.Reporter, cache *session.Cache) *Console {
	c := &Console{
		indexer:  indexer,
		runner:   runner,
		reporter: reporter,
		cache:    cache,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", c.handleHome)
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", c.handleStatus)
		r.Get("/progress", c.handleProgress)
		r.Post("/index", c.handleIndex)
		r.Post("/cancel", c.handleCancel)
		r.Post("/reinitialize", c.handleReinitialize)
	})

	c.server = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return c
}

// Handler returns the HTTP handler, for tests.
func (c *Console) Handler() http.Handler {
	return c.server.Handler
}

// Start serves until the context is cancelled.
func (c *Console) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.server.Shutdown(shutdownCtx)
	}()

	slog.Info("console listening", slog.String("addr", c.server.Addr))
	err := c.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (c *Console) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := c.indexer.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	payload := map[string]any{"status": status}
	if ev := c.runner.LastEvent(); ev != nil {
		payload["indexing"] = ev
	}
	writeJSON(w, http.StatusOK, payload)
}

func (c *Console) handleProgress(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := c.reporter.Tail(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": records})
}

type indexRequest struct {
	ReindexAll bool `json:"reindex_all"`
}

func (c *Console) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if r.Body != nil {
		// An empty body means an incremental update.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	err := c.runner.Start(context.WithoutCancel(r.Context()), index.Options{ReindexAll: req.ReindexAll})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"started": true, "reindex_all": req.ReindexAll})
}

func (c *Console) handleCancel(w http.ResponseWriter, r *http.Request) {
	running := c.runner.IsRunning()
	if running {
		c.runner.Cancel()
	}
	writeJSON(w, http.StatusOK, map[string]any{"was_running": running})
}

func (c *Console) handleReinitialize(w http.ResponseWriter, r *http.Request) {
	if err := c.indexer.Reinitialize(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	if c.cache != nil {
		c.cache.Invalidate()
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
}

func (c *Console) handleHome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(homePage))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch ragerr.KindOf(err) {
	case ragerr.KindBusy:
		status = http.StatusConflict
	case ragerr.KindConfig:
		status = http.StatusUnprocessableEntity
	case ragerr.KindUnauthorized:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]any{"error": err.Error(), "kind": string(ragerr.KindOf(err))})
}

const homePage = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>semidex console</title>
<style>
body { font-family: ui-monospace, monospace; margin: 2rem; max-width: 60rem; }
button { margin-right: 0.5rem; }
pre { background: #f4f4f4; padding: 1rem; overflow-x: auto; }
</style>
</head>
<body>
<h1>semidex</h1>
<p>
<button onclick="post('/api/index', {reindex_all: false})">Update index</button>
<button onclick="post('/api/index', {reindex_all: true})">Rebuild index</button>
<button onclick="post('/api/cancel')">Cancel</button>
</p>
<h2>Status</h2>
<pre id="status">loading...</pre>
<h2>Recent progress</h2>
<pre id="progress"></pre>
<script>
async function post(url, body) {
  const resp = await fetch(url, {method: 'POST', headers: {'Content-Type': 'application/json'},
    body: body ? JSON.stringify(body) : null});
  if (resp.status === 409) { alert('An indexing operation is already running.'); }
  refresh();
}
async function refresh() {
  const status = await (await fetch('/api/status')).json();
  document.getElementById('status').textContent = JSON.stringify(status, null, 2);
  const progress = await (await fetch('/api/progress?limit=20')).json();
  document.getElementById('progress').textContent =
    (progress.events || []).map(e => JSON.stringify(e)).join('\n');
}
refresh();
setInterval(refresh, 2000);
</script>
</body>
</html>
`
