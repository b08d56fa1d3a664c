package index

import "sync/atomic"

// CancelToken is a shared flag consulted at defined checkpoints by the
// indexing pipeline. Cancellation is cooperative: setting the flag stops the
// run at the next checkpoint, dropping the in-flight batch.
type CancelToken struct {
	cancelled atomic.Bool
}

// NewCancelToken creates an unset token.
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Cancel sets the flag.
func (t *CancelToken) Cancel() {
	t.cancelled.Store(true)
}

// IsCancelled reports whether the flag is set.
func (t *CancelToken) IsCancelled() bool {
	return t.cancelled.Load()
}

// Reset clears the flag so the token can be reused for the next run.
func (t *CancelToken) Reset() {
	t.cancelled.Store(false)
}
