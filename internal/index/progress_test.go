package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0, percentage(0, 0))
	assert.Equal(t, 0, percentage(5, 0))
	assert.Equal(t, 50, percentage(5, 10))
	assert.Equal(t, 33, percentage(1, 3), "percentage floors")
	assert.Equal(t, 100, percentage(10, 10))
}

func TestThrottle(t *testing.T) {
	th := newThrottle(50 * time.Millisecond)

	assert.True(t, th.allow())
	assert.False(t, th.allow(), "second emission inside the interval is suppressed")

	time.Sleep(60 * time.Millisecond)
	assert.True(t, th.allow())
}

func TestEventData_Flattens(t *testing.T) {
	ev := Event{
		Type: EventProgress,
		Progress: Progress{
			CompletedChunks:     3,
			TotalChunks:         10,
			TotalFiles:          2,
			CurrentFile:         "a.md",
			WaitingForRateLimit: true,
			Percentage:          30,
		},
	}

	data := ev.Data()
	assert.Equal(t, 3, data["completed_chunks"])
	assert.Equal(t, "a.md", data["current_file"])
	assert.Equal(t, true, data["waiting_for_rate_limit"])
	assert.NotContains(t, data, "is_cancelled")
	assert.NotContains(t, data, "message")
}

func TestCancelToken(t *testing.T) {
	token := NewCancelToken()
	assert.False(t, token.IsCancelled())

	token.Cancel()
	assert.True(t, token.IsCancelled())

	token.Reset()
	assert.False(t, token.IsCancelled())
}
