package ragerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Transport("embedding request failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestError_IsMatchesByKind(t *testing.T) {
	err := RateLimited("quota exhausted", nil)

	assert.ErrorIs(t, err, &Error{Kind: KindRateLimited})
	assert.NotErrorIs(t, err, &Error{Kind: KindTransport})
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transport", Transport("timeout", nil), true},
		{"rate limited", RateLimited("429", nil), true},
		{"unauthorized", Unauthorized("bad key", nil), false},
		{"config", Config("missing url", nil), false},
		{"io", IO("read failed", nil), false},
		{"plain error", errors.New("boom"), false},
		{"wrapped transport", fmt.Errorf("embed: %w", Transport("timeout", nil)), true},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindBusy, KindOf(Busy("indexing in progress")))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestIndexing_CarriesPaths(t *testing.T) {
	err := Indexing("2 chunks failed", []string{"a.md", "b.md"})

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, []string{"a.md", "b.md"}, e.Paths)
	assert.False(t, e.Retryable)
}
