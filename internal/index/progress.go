package index

import (
	"sync"
	"time"
)

// EventType discriminates progress events.
type EventType string

const (
	EventStart     EventType = "start"
	EventProgress  EventType = "progress"
	EventComplete  EventType = "complete"
	EventCancelled EventType = "cancelled"
	EventError     EventType = "error"
	EventWarning   EventType = "warning"
)

// Progress is the payload carried by progress-bearing events.
type Progress struct {
	CompletedChunks     int    `json:"completed_chunks"`
	TotalChunks         int    `json:"total_chunks"`
	TotalFiles          int    `json:"total_files"`
	CompletedFiles      int    `json:"completed_files"`
	CurrentFile         string `json:"current_file,omitempty"`
	WaitingForRateLimit bool   `json:"waiting_for_rate_limit,omitempty"`
	IsCancelled         bool   `json:"is_cancelled,omitempty"`
	Percentage          int    `json:"percentage"`
}

// Event is the variant delivered to progress callbacks. Exactly one run
// terminates with a complete, cancelled, or error event.
type Event struct {
	Type     EventType `json:"type"`
	Progress Progress  `json:"progress"`
	Message  string    `json:"message,omitempty"`
	Paths    []string  `json:"paths,omitempty"`
}

// ProgressFunc receives events during an update run.
type ProgressFunc func(Event)

// Data flattens the event for the progress log, so each JSONL record
// carries the counters at the top level of its data object.
func (ev Event) Data() map[string]any {
	data := map[string]any{
		"completed_chunks": ev.Progress.CompletedChunks,
		"total_chunks":     ev.Progress.TotalChunks,
		"total_files":      ev.Progress.TotalFiles,
		"completed_files":  ev.Progress.CompletedFiles,
		"percentage":       ev.Progress.Percentage,
	}
	if ev.Progress.CurrentFile != "" {
		data["current_file"] = ev.Progress.CurrentFile
	}
	if ev.Progress.WaitingForRateLimit {
		data["waiting_for_rate_limit"] = true
	}
	if ev.Progress.IsCancelled {
		data["is_cancelled"] = true
	}
	if ev.Message != "" {
		data["message"] = ev.Message
	}
	if len(ev.Paths) > 0 {
		data["paths"] = ev.Paths
	}
	return data
}

// percentage computes floor(100*completed/total), 0 when total is 0.
func percentage(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return completed * 100 / total
}

// throttle limits chunk-completion progress emissions to one per interval.
// Batch-end and terminal events bypass it.
type throttle struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func newThrottle(interval time.Duration) *throttle {
	return &throttle{interval: interval}
}

// allow reports whether an emission is due, consuming the slot if so.
func (t *throttle) allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	return true
}
