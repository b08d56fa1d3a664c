// Package report maintains the append-only JSON-lines progress log for a
// workspace.
package report

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMinInterval is the minimum spacing between persisted progress
// records. Terminal and warning records are never throttled.
const DefaultMinInterval = 500 * time.Millisecond

// Record is one line of the progress log. Readers tolerate unknown fields.
type Record struct {
	Timestamp string          `json:"timestamp"`
	RunID     string          `json:"run_id,omitempty"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
}

// Reporter appends progress events to a workspace-scoped log file. Append
// failures never propagate to the indexing run; the first failure logs a
// single warning.
type Reporter struct {
	path        string
	minInterval time.Duration

	mu           sync.Mutex
	runID        string
	lastProgress time.Time
	warnOnce     sync.Once
}

// New creates a Reporter and truncates the log so each engine lifetime has a
// clean record.
func New(path string) (*Reporter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	_ = f.Close()

	return &Reporter{
		path:        path,
		minInterval: DefaultMinInterval,
	}, nil
}

// Path returns the log file location.
func (r *Reporter) Path() string {
	return r.path
}

// BeginRun stamps subsequent records with a fresh run identifier.
func (r *Reporter) BeginRun() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runID = uuid.NewString()
	return r.runID
}

// Append writes one event line. Progress events closer together than the
// minimum interval are dropped; every other type is always written.
func (r *Reporter) Append(eventType string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if eventType == "progress" {
		if now.Sub(r.lastProgress) < r.minInterval {
			return
		}
		r.lastProgress = now
	}

	payload, err := json.Marshal(data)
	if err != nil {
		r.warn(err)
		return
	}
	line, err := json.Marshal(Record{
		Timestamp: now.Format(time.RFC3339),
		RunID:     r.runID,
		Type:      eventType,
		Data:      payload,
	})
	if err != nil {
		r.warn(err)
		return
	}

	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		r.warn(err)
		return
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(line, '\n')); err != nil {
		r.warn(err)
	}
}

// Tail returns up to n records from the end of the log.
func (r *Reporter) Tail(n int) ([]Record, error) {
	f, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var records []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	if n > 0 && len(records) > n {
		records = records[len(records)-n:]
	}
	return records, nil
}

// warn logs one warning for the reporter's lifetime; later failures are
// silent so a broken log file cannot flood the run.
func (r *Reporter) warn(err error) {
	r.warnOnce.Do(func() {
		slog.Warn("failed to append progress record",
			slog.String("path", r.path),
			slog.String("error", err.Error()))
	})
}
