// Package async runs index updates in the background and tracks their
// progress for the control surfaces.
package async

import (
	"context"
	"log/slog"
	"sync"

	"github.com/semidex/semidex/internal/index"
	"github.com/semidex/semidex/internal/ragerr"
)

// Runner owns the single in-flight update of this process. Starting a second
// update while one runs fails with a busy error; it never queues.
type Runner struct {
	engine *index.Engine
	token  *index.CancelToken

	// OnFinish, when set, is invoked after each run with its terminal
	// error (nil on success or cancellation). Used to invalidate the
	// session cache after mutations.
	OnFinish func(err error)

	mu      sync.Mutex
	running bool
	last    *index.Event
	lastErr error
}

// NewRunner creates a Runner around an engine.
func NewRunner(engine *index.Engine) *Runner {
	return &Runner{
		engine: engine,
		token:  index.NewCancelToken(),
	}
}

// Start launches an update in the background. It returns immediately; a
// busy error means a run is already in flight.
func (r *Runner) Start(ctx context.Context, opts index.Options) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ragerr.Busy("an indexing operation is already in progress")
	}
	r.running = true
	r.lastErr = nil
	r.token.Reset()
	r.mu.Unlock()

	go func() {
		err := r.engine.Update(ctx, opts, r.record, r.token)
		if err != nil {
			slog.Error("index update failed", slog.String("error", err.Error()))
		}

		r.mu.Lock()
		r.running = false
		r.lastErr = err
		finish := r.OnFinish
		r.mu.Unlock()

		if finish != nil {
			finish(err)
		}
	}()
	return nil
}

// Run executes an update synchronously, still tracked so control surfaces
// observe its progress.
func (r *Runner) Run(ctx context.Context, opts index.Options, cb index.ProgressFunc) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ragerr.Busy("an indexing operation is already in progress")
	}
	r.running = true
	r.lastErr = nil
	r.token.Reset()
	r.mu.Unlock()

	err := r.engine.Update(ctx, opts, func(ev index.Event) {
		r.record(ev)
		if cb != nil {
			cb(ev)
		}
	}, r.token)

	r.mu.Lock()
	r.running = false
	r.lastErr = err
	finish := r.OnFinish
	r.mu.Unlock()

	if finish != nil {
		finish(err)
	}
	return err
}

// Cancel requests cooperative cancellation of the in-flight run.
func (r *Runner) Cancel() {
	r.token.Cancel()
}

// IsRunning reports whether an update is in flight.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// LastEvent returns the most recent progress event, if any.
func (r *Runner) LastEvent() *index.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return nil
	}
	ev := *r.last
	return &ev
}

// LastError returns the terminal error of the most recent finished run.
func (r *Runner) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

func (r *Runner) record(ev index.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = &ev
}
