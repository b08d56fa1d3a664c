// Package ragerr defines the structured error taxonomy shared by the
// indexing and retrieval pipeline.
package ragerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for handling decisions.
type Kind string

const (
	// KindConfig marks missing or invalid configuration: credentials,
	// database URL, dimension/schema mismatch. Fatal until corrected.
	KindConfig Kind = "config"

	// KindTransport marks transient network failures against the embedding
	// provider. Retried inside the embedding loop.
	KindTransport Kind = "transport"

	// KindRateLimited marks provider quota exhaustion (HTTP 429). Retried
	// with backoff.
	KindRateLimited Kind = "rate_limited"

	// KindUnauthorized marks credential-level failures. Never retried.
	KindUnauthorized Kind = "unauthorized"

	// KindIO marks file read failures. Recorded per-file, does not abort
	// the run.
	KindIO Kind = "io"

	// KindBusy marks a rejected concurrent indexing request.
	KindBusy Kind = "busy"

	// KindCancelled marks cooperative cancellation. Terminal, not a failure.
	KindCancelled Kind = "cancelled"

	// KindIndexing marks an aggregated run failure: all files failed, or
	// some chunks failed after exhausting retries.
	KindIndexing Kind = "indexing"

	// KindInternal marks unclassified failures.
	KindInternal Kind = "internal"
)

// Error is the structured error type for the retrieval service.
type Error struct {
	// Kind classifies the failure.
	Kind Kind

	// Message is the human-readable error message.
	Message string

	// Cause is the underlying error, if any.
	Cause error

	// Retryable indicates whether the embedding loop may retry the
	// operation.
	Retryable bool

	// Paths lists affected workspace-relative paths for aggregated
	// indexing failures.
	Paths []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by kind, enabling errors.Is against sentinel values.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates an Error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Cause:     cause,
		Retryable: kind == KindTransport || kind == KindRateLimited,
	}
}

// Config creates a configuration error.
func Config(message string, cause error) *Error {
	return New(KindConfig, message, cause)
}

// Transport creates a transient network error.
func Transport(message string, cause error) *Error {
	return New(KindTransport, message, cause)
}

// RateLimited creates a provider quota error.
func RateLimited(message string, cause error) *Error {
	return New(KindRateLimited, message, cause)
}

// Unauthorized creates a credential error.
func Unauthorized(message string, cause error) *Error {
	return New(KindUnauthorized, message, cause)
}

// IO creates a file read error.
func IO(message string, cause error) *Error {
	return New(KindIO, message, cause)
}

// Busy creates a concurrent-request rejection.
func Busy(message string) *Error {
	return New(KindBusy, message, nil)
}

// Cancelled creates a cooperative-cancellation terminal error.
func Cancelled(message string) *Error {
	return New(KindCancelled, message, nil)
}

// Indexing creates an aggregated run failure listing the affected paths.
func Indexing(message string, paths []string) *Error {
	e := New(KindIndexing, message, nil)
	e.Paths = paths
	return e
}

// IsRetryable reports whether the embedding loop may retry after err.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// IsRateLimited reports whether err is a provider quota error.
func IsRateLimited(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindRateLimited
	}
	return false
}

// KindOf returns the kind of err, or KindInternal for plain errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
