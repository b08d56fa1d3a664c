// Package index orchestrates full and incremental index updates: diffing by
// mtime, deleting obsolete rows, chunking, embedding with retry and
// cancellation, batch-inserting, and emitting progress.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/semidex/semidex/internal/chunk"
	"github.com/semidex/semidex/internal/embed"
	"github.com/semidex/semidex/internal/ragerr"
	"github.com/semidex/semidex/internal/report"
	"github.com/semidex/semidex/internal/scanner"
	"github.com/semidex/semidex/internal/store"
)

const (
	// DefaultBatchSize is chosen for cancellation responsiveness, not
	// throughput.
	DefaultBatchSize = 10

	// DefaultBatchDelay is the courtesy pause between embedding batches.
	DefaultBatchDelay = 100 * time.Millisecond

	// DefaultThrottleInterval bounds chunk-completion progress emissions.
	DefaultThrottleInterval = 500 * time.Millisecond
)

// errRunCancelled aborts a retry loop when the token fires mid-backoff.
var errRunCancelled = errors.New("run cancelled")

// Options controls one update invocation.
type Options struct {
	// ReindexAll clears the workspace+model partition and rebuilds it,
	// skipping the mtime diff.
	ReindexAll bool
}

// Config parameterizes the engine.
type Config struct {
	WorkspaceID string
	Root        string
	MarkerPath  string

	BatchSize        int
	BatchDelay       time.Duration
	ThrottleInterval time.Duration
	Retry            ragerr.RetryConfig
}

// Engine runs index updates, serialized per process by a non-blocking mutex
// and per workspace by the store's advisory lock.
type Engine struct {
	store    store.Store
	embedder embed.Embedder
	chunker  *chunk.Chunker
	scanner  *scanner.Scanner
	reporter *report.Reporter
	cfg      Config

	busy sync.Mutex
}

// New creates an Engine. Zero config values fall back to defaults.
func New(st store.Store, emb embed.Embedder, ch *chunk.Chunker, sc *scanner.Scanner, rep *report.Reporter, cfg Config) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = DefaultBatchDelay
	}
	if cfg.ThrottleInterval <= 0 {
		cfg.ThrottleInterval = DefaultThrottleInterval
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = ragerr.DefaultRetryConfig()
	}
	return &Engine{
		store:    st,
		embedder: emb,
		chunker:  ch,
		scanner:  sc,
		reporter: rep,
		cfg:      cfg,
	}
}

// Model returns the embedding model identifier the engine writes rows for.
func (e *Engine) Model() string {
	return e.embedder.ModelName()
}

// IsBusy reports whether an update is currently running in this process.
func (e *Engine) IsBusy() bool {
	if e.busy.TryLock() {
		e.busy.Unlock()
		return false
	}
	return true
}

// Update runs one index update. A second concurrent call in this process
// fails immediately with a busy error; concurrent updates of the same
// workspace from other processes serialize on the advisory lock.
func (e *Engine) Update(ctx context.Context, opts Options, cb ProgressFunc, token *CancelToken) error {
	if cb == nil {
		cb = func(Event) {}
	}
	if token == nil {
		token = NewCancelToken()
	}

	if !e.busy.TryLock() {
		return ragerr.Busy("an indexing operation is already in progress")
	}
	defer e.busy.Unlock()

	e.reporter.BeginRun()

	if err := e.checkDimensions(ctx); err != nil {
		e.emitTerminal(cb, EventError, Progress{}, err.Error(), nil)
		return err
	}

	// The marker file signals an in-flight run to other local processes.
	// Serialization itself is the advisory lock's job.
	marker := e.acquireMarker()
	defer e.releaseMarker(marker)

	err := e.store.WithWorkspaceLock(ctx, e.cfg.WorkspaceID, func(ctx context.Context) error {
		return e.run(ctx, opts, cb, token)
	})
	if err != nil {
		e.emitTerminal(cb, EventError, Progress{}, err.Error(), nil)
		return err
	}
	return nil
}

// Reinitialize deletes all rows for the current workspace and model.
func (e *Engine) Reinitialize(ctx context.Context) error {
	if !e.busy.TryLock() {
		return ragerr.Busy("an indexing operation is already in progress")
	}
	defer e.busy.Unlock()

	return e.store.WithWorkspaceLock(ctx, e.cfg.WorkspaceID, func(ctx context.Context) error {
		return e.store.ClearAll(ctx, e.cfg.WorkspaceID, e.Model())
	})
}

// Status describes the current index state for the status control surface.
type Status struct {
	Initialized    bool               `json:"initialized"`
	TotalFiles     int                `json:"total_files"`
	IndexedFiles   int                `json:"indexed_files"`
	LastUpdated    *time.Time         `json:"last_updated,omitempty"`
	EmbeddingModel string             `json:"embedding_model"`
	PerModelStats  []store.ModelStats `json:"per_model_stats"`
	Busy           bool               `json:"busy"`
}

// Status reports matched file counts, indexed paths, and per-model stats.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	files, err := e.scanner.Scan(ctx)
	if err != nil {
		return nil, err
	}
	indexed, err := e.store.IndexedPaths(ctx, e.cfg.WorkspaceID, e.Model())
	if err != nil {
		return nil, err
	}
	stats, err := e.store.Stats(ctx, e.cfg.WorkspaceID)
	if err != nil {
		return nil, err
	}

	status := &Status{
		Initialized:    len(indexed) > 0,
		TotalFiles:     len(files),
		IndexedFiles:   len(indexed),
		EmbeddingModel: e.Model(),
		PerModelStats:  stats,
		Busy:           e.IsBusy(),
	}
	if last, err := e.store.LastIndexedAt(ctx, e.cfg.WorkspaceID, e.Model()); err == nil && !last.IsZero() {
		status.LastUpdated = &last
	}
	return status, nil
}

// checkDimensions refuses to index while the schema and the embedding model
// disagree on vector width.
func (e *Engine) checkDimensions(ctx context.Context) error {
	schemaDim, err := e.store.SchemaDimension(ctx)
	if err != nil {
		return err
	}
	dims := e.embedder.Dimensions()
	if schemaDim != 0 && dims != 0 && schemaDim != dims {
		return ragerr.Config(fmt.Sprintf(
			"embedding model %q produces %d-dimensional vectors but the schema declares %d; "+
				"recreate the chunks table or switch models", e.Model(), dims, schemaDim), nil)
	}
	return nil
}

func (e *Engine) acquireMarker() *flock.Flock {
	if e.cfg.MarkerPath == "" {
		return nil
	}
	marker := flock.New(e.cfg.MarkerPath)
	locked, err := marker.TryLock()
	if err != nil || !locked {
		return nil
	}
	return marker
}

func (e *Engine) releaseMarker(marker *flock.Flock) {
	if marker == nil {
		return
	}
	_ = marker.Unlock()
	_ = os.Remove(e.cfg.MarkerPath)
}

// pendingChunk is one chunk awaiting embedding.
type pendingChunk struct {
	path    string
	mtimeMS int64
	chunk   chunk.Chunk
}

// skippedFile is a file with no indexable content; it gets a marker row.
type skippedFile struct {
	file   scanner.FileInfo
	reason string
}

func (e *Engine) run(ctx context.Context, opts Options, cb ProgressFunc, token *CancelToken) error {
	files, err := e.scanner.Scan(ctx)
	if err != nil {
		return err
	}

	toProcess, err := e.selectFiles(ctx, files, opts.ReindexAll)
	if err != nil {
		return err
	}

	pending, skipped, failedFiles := e.readAndChunk(toProcess)

	total := len(pending)
	throttler := newThrottle(e.cfg.ThrottleInterval)

	base := Progress{
		TotalChunks: total,
		TotalFiles:  len(toProcess),
		Percentage:  percentage(0, total),
	}
	e.emit(cb, Event{Type: EventStart, Progress: base})

	if len(failedFiles) > 0 {
		sort.Strings(failedFiles)
		e.emit(cb, Event{
			Type:     EventWarning,
			Progress: base,
			Message:  fmt.Sprintf("%d files could not be read", len(failedFiles)),
			Paths:    failedFiles,
		})
	}

	if token.IsCancelled() {
		base.IsCancelled = true
		e.emitTerminal(cb, EventCancelled, base, "", nil)
		return nil
	}

	if err := e.recordSkipped(ctx, skipped); err != nil {
		return err
	}

	state := &runState{
		total:      total,
		totalFiles: len(toProcess),
		remaining:  make(map[string]int, len(toProcess)),
	}
	for _, p := range pending {
		state.remaining[p.path]++
	}

	if err := e.embedLoop(ctx, pending, state, throttler, cb, token); err != nil {
		return err
	}

	progress := state.snapshot()
	if token.IsCancelled() {
		progress.IsCancelled = true
		e.emitTerminal(cb, EventCancelled, progress, "", nil)
		return nil
	}

	if failed := state.failedPaths(); len(failed) > 0 {
		e.emit(cb, Event{
			Type:     EventWarning,
			Progress: progress,
			Message:  fmt.Sprintf("%d files had chunks fail to embed after retries", len(failed)),
			Paths:    failed,
		})
		return ragerr.Indexing(fmt.Sprintf("failed to embed chunks from %d files", len(failed)), failed)
	}

	e.emitTerminal(cb, EventComplete, progress, "", nil)
	return nil
}

// selectFiles applies the reindex/diff phase and pre-deletes rows for every
// file that will be rewritten, so prior partial state is replaced within
// this lock.
func (e *Engine) selectFiles(ctx context.Context, files []scanner.FileInfo, reindexAll bool) ([]scanner.FileInfo, error) {
	ws, model := e.cfg.WorkspaceID, e.Model()

	if reindexAll {
		if err := e.store.ClearAll(ctx, ws, model); err != nil {
			return nil, err
		}
		return files, nil
	}

	matching := make([]string, len(files))
	for i, f := range files {
		matching[i] = f.Path
	}

	// Prune rows for files that disappeared or no longer match patterns.
	if err := e.store.DeleteAbsent(ctx, ws, model, matching); err != nil {
		return nil, err
	}

	stored, err := e.store.MTimes(ctx, ws, model, matching)
	if err != nil {
		return nil, err
	}

	var toProcess []scanner.FileInfo
	for _, f := range files {
		prev, ok := stored[f.Path]
		if !ok || f.MTimeMS > prev {
			toProcess = append(toProcess, f)
		}
	}

	stale := make([]string, len(toProcess))
	for i, f := range toProcess {
		stale[i] = f.Path
	}
	if err := e.store.DeleteForPaths(ctx, ws, model, stale); err != nil {
		return nil, err
	}
	return toProcess, nil
}

// readAndChunk reads each selected file and splits it into chunks. Zero-size
// files and files with no indexable content become skip markers; unreadable
// files are recorded and do not abort the run.
func (e *Engine) readAndChunk(toProcess []scanner.FileInfo) ([]pendingChunk, []skippedFile, []string) {
	var pending []pendingChunk
	var skipped []skippedFile
	var failed []string

	for _, f := range toProcess {
		if f.Size == 0 {
			skipped = append(skipped, skippedFile{file: f, reason: "empty file"})
			continue
		}

		content, err := os.ReadFile(filepath.Join(e.cfg.Root, filepath.FromSlash(f.Path)))
		if err != nil {
			slog.Warn("failed to read file",
				slog.String("path", f.Path),
				slog.String("error", err.Error()))
			failed = append(failed, f.Path)
			continue
		}

		chunks := e.chunker.Chunks(f.Path, string(content))
		if len(chunks) == 0 {
			skipped = append(skipped, skippedFile{file: f, reason: "no indexable content"})
			continue
		}
		for _, c := range chunks {
			pending = append(pending, pendingChunk{path: f.Path, mtimeMS: f.MTimeMS, chunk: c})
		}
	}
	return pending, skipped, failed
}

// recordSkipped persists one zero-vector marker row per skipped file so the
// file is not reprocessed on the next incremental run.
func (e *Engine) recordSkipped(ctx context.Context, skipped []skippedFile) error {
	if len(skipped) == 0 {
		return nil
	}

	dims := e.embedder.Dimensions()
	rows := make([]store.Row, len(skipped))
	for i, s := range skipped {
		rows[i] = store.Row{
			WorkspaceID: e.cfg.WorkspaceID,
			Path:        s.file.Path,
			MTimeMS:     s.file.MTimeMS,
			Content:     fmt.Sprintf("[SKIPPED: %s]", s.reason),
			Model:       e.Model(),
			Dimension:   dims,
			Embedding:   make([]float32, dims),
			Metadata: store.Metadata{
				StartLine:    1,
				EndLine:      1,
				Skipped:      true,
				Reason:       s.reason,
				OriginalSize: s.file.Size,
			},
		}
	}
	return e.store.Insert(ctx, rows)
}

// runState tracks progress counters shared between batch workers.
type runState struct {
	mu         sync.Mutex
	total      int
	totalFiles int
	completed  int
	files      int
	remaining  map[string]int
	failed     map[string]bool
	current    string
}

func (s *runState) chunkDone(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed++
	s.current = path
	s.remaining[path]--
	if s.remaining[path] == 0 {
		s.files++
	}
}

func (s *runState) chunkFailed(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed == nil {
		s.failed = make(map[string]bool)
	}
	s.failed[path] = true
}

func (s *runState) failedPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.failed) == 0 {
		return nil
	}
	paths := make([]string, 0, len(s.failed))
	for p := range s.failed {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (s *runState) snapshot() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Progress{
		CompletedChunks: s.completed,
		TotalChunks:     s.total,
		TotalFiles:      s.totalFiles,
		CompletedFiles:  s.files,
		CurrentFile:     s.current,
		Percentage:      percentage(s.completed, s.total),
	}
}

// embedLoop processes pending chunks in fixed-size batches. Within a batch
// the embedding calls run concurrently; batches are sequential with a
// courtesy delay between them. The cancel token is checked before each
// batch, before each embedding call, and after each batch; cancellation
// drops the un-inserted batch.
func (e *Engine) embedLoop(ctx context.Context, pending []pendingChunk, state *runState, throttler *throttle, cb ProgressFunc, token *CancelToken) error {
	ws, model := e.cfg.WorkspaceID, e.Model()
	dims := e.embedder.Dimensions()

	emitProgress := func(p Progress, waiting, force bool) {
		p.WaitingForRateLimit = waiting
		if !force && !throttler.allow() {
			return
		}
		e.emit(cb, Event{Type: EventProgress, Progress: p})
	}

	for start := 0; start < len(pending); start += e.cfg.BatchSize {
		if token.IsCancelled() {
			return nil
		}

		end := min(start+e.cfg.BatchSize, len(pending))
		batch := pending[start:end]
		rows := make([]*store.Row, len(batch))

		g, gctx := errgroup.WithContext(ctx)
		for i, pc := range batch {
			g.Go(func() error {
				if token.IsCancelled() {
					return nil
				}

				retry := e.cfg.Retry
				retry.OnRetry = func(attempt int, err error) {
					p := state.snapshot()
					p.CurrentFile = pc.path
					emitProgress(p, ragerr.IsRateLimited(err), true)
				}

				vector, err := ragerr.RetryWithResult(gctx, retry, func() ([]float32, error) {
					if token.IsCancelled() {
						return nil, errRunCancelled
					}
					return e.embedder.Embed(gctx, pc.chunk.Content)
				})
				if err != nil {
					if token.IsCancelled() || errors.Is(err, errRunCancelled) || errors.Is(err, context.Canceled) {
						return nil
					}
					slog.Warn("chunk embedding failed permanently",
						slog.String("path", pc.path),
						slog.String("error", err.Error()))
					state.chunkFailed(pc.path)
					return nil
				}

				if dims != 0 && len(vector) != dims {
					return ragerr.Config(fmt.Sprintf(
						"provider returned %d-dimensional vector, expected %d", len(vector), dims), nil)
				}

				rows[i] = &store.Row{
					WorkspaceID: ws,
					Path:        pc.path,
					MTimeMS:     pc.mtimeMS,
					Content:     pc.chunk.Content,
					Model:       model,
					Dimension:   len(vector),
					Embedding:   vector,
					Metadata: store.Metadata{
						StartLine: pc.chunk.StartLine,
						EndLine:   pc.chunk.EndLine,
					},
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		// Cancellation after the batch drops it un-inserted; already
		// persisted batches stay, and the next incremental run resumes
		// from them.
		if token.IsCancelled() {
			return nil
		}

		insert := make([]store.Row, 0, len(rows))
		for _, r := range rows {
			if r == nil {
				continue
			}
			insert = append(insert, *r)
		}
		if err := e.store.Insert(ctx, insert); err != nil {
			return err
		}
		for _, r := range insert {
			state.chunkDone(r.Path)
			emitProgress(state.snapshot(), false, false)
		}

		emitProgress(state.snapshot(), false, true)

		if end < len(pending) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.cfg.BatchDelay):
			}
		}
	}
	return nil
}

// emit delivers an event to the callback and mirrors it into the progress
// log.
func (e *Engine) emit(cb ProgressFunc, ev Event) {
	cb(ev)
	if e.reporter != nil {
		e.reporter.Append(string(ev.Type), ev.Data())
	}
}

func (e *Engine) emitTerminal(cb ProgressFunc, t EventType, p Progress, message string, paths []string) {
	e.emit(cb, Event{Type: t, Progress: p, Message: message, Paths: paths})
}
