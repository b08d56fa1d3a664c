// Package watcher triggers incremental index updates from filesystem
// events, debounced so editor save bursts collapse into one run.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/semidex/semidex/internal/scanner"
)

// DefaultDebounce is how long the watcher waits for the event burst to
// settle before triggering an update.
const DefaultDebounce = 2 * time.Second

// Watcher observes a workspace tree and invokes a callback after changes.
type Watcher struct {
	root     string
	scanner  *scanner.Scanner
	debounce time.Duration

	// OnChange is invoked once per settled burst of relevant events.
	OnChange func()
}

// New creates a Watcher for the workspace root. The scanner decides which
// file events are relevant.
func New(root string, sc *scanner.Scanner, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{root: root, scanner: sc, debounce: debounce}
}

// Run watches until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := w.addDirs(fsw); err != nil {
		return err
	}

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(fsw, ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerCh = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-timerCh:
			timer = nil
			timerCh = nil
			if w.OnChange != nil {
				w.OnChange()
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

// addDirs registers the root and every non-hidden subdirectory.
func (w *Watcher) addDirs(fsw *fsnotify.Watcher) error {
	return filepath.WalkDir(w.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.root, p)
		if relErr != nil {
			return nil
		}
		if rel != "." && isHiddenPath(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		if addErr := fsw.Add(p); addErr != nil {
			slog.Warn("failed to watch directory",
				slog.String("path", p),
				slog.String("error", addErr.Error()))
		}
		return nil
	})
}

// relevant reports whether an event concerns a matching file, registering
// newly created directories as a side effect.
func (w *Watcher) relevant(fsw *fsnotify.Watcher, ev fsnotify.Event) bool {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if isHiddenPath(rel) {
		return false
	}

	// New directories must be added to the watch set; their appearance is
	// also a relevant change when files were moved in.
	if ev.Op.Has(fsnotify.Create) {
		if fi, statErr := os.Stat(ev.Name); statErr == nil && fi.IsDir() {
			_ = fsw.Add(ev.Name)
			return true
		}
	}

	return w.scanner.Matches(rel)
}

func isHiddenPath(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
