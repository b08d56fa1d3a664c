package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReporter(t *testing.T) *Reporter {
	t.Helper()
	r, err := New(filepath.Join(t.TempDir(), "progress.jsonl"))
	require.NoError(t, err)
	return r
}

func TestReporter_AppendAndTail(t *testing.T) {
	r := newTestReporter(t)
	r.BeginRun()

	r.Append("start", map[string]any{"total_files": 3})
	r.Append("complete", map[string]any{"completed_chunks": 9})

	records, err := r.Tail(0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "start", records[0].Type)
	assert.Equal(t, "complete", records[1].Type)
	assert.NotEmpty(t, records[0].RunID)
	_, err = time.Parse(time.RFC3339, records[0].Timestamp)
	assert.NoError(t, err)
}

func TestReporter_ThrottlesProgress(t *testing.T) {
	r := newTestReporter(t)

	for i := 0; i < 10; i++ {
		r.Append("progress", map[string]any{"completed_chunks": i})
	}

	records, err := r.Tail(0)
	require.NoError(t, err)
	assert.Len(t, records, 1, "rapid progress records collapse to one")
}

func TestReporter_TerminalEventsNeverThrottled(t *testing.T) {
	r := newTestReporter(t)

	r.Append("progress", map[string]any{})
	r.Append("cancelled", map[string]any{})
	r.Append("error", map[string]any{})
	r.Append("warning", map[string]any{})

	records, err := r.Tail(0)
	require.NoError(t, err)
	assert.Len(t, records, 4)
}

func TestNew_TruncatesExistingLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"type\":\"old\"}\n"), 0o644))

	r, err := New(path)
	require.NoError(t, err)

	records, err := r.Tail(0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestReporter_TailLimit(t *testing.T) {
	r := newTestReporter(t)
	r.Append("start", nil)
	r.Append("warning", nil)
	r.Append("complete", nil)

	records, err := r.Tail(2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "warning", records[0].Type)
}
