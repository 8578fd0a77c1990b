// Package errors defines the typed failure taxonomy the runtime uses to decide
// whether a given error aborts a resync, gates the delete phase, or is simply
// counted and reported. Every kind wraps a plain error rather than replacing it,
// so callers can keep using errors.As/errors.Is against both the wrapper and the
// underlying cause.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ConfigError marks an invalid user configuration or mapping expression.
// Surfaced at startup (or at resync start, for mapping compilation); the
// caller is expected to exit rather than retry.
type ConfigError struct{ error }

func NewConfigError(err error) ConfigError { return ConfigError{err} }

func ConfigErrorf(format string, args ...any) ConfigError {
	return ConfigError{fmt.Errorf(format, args...)}
}

// TransientIOError marks a 5xx, 429, timeout, or transport-level failure
// that is safe to retry with backoff.
type TransientIOError struct{ error }

func NewTransientIOError(err error) TransientIOError { return TransientIOError{err} }

// PermanentIOError marks a 4xx (other than 429) response. Not retried; the
// owning entity is counted as failed but does not halt the resync.
// StatusCode is 0 when the error did not originate from an HTTP response
// (e.g. a request-construction failure or a per-entity batch error).
type PermanentIOError struct {
	error
	StatusCode int
}

func NewPermanentIOError(err error) PermanentIOError { return PermanentIOError{error: err} }

// NewPermanentIOErrorWithStatus is like NewPermanentIOError but records the
// originating HTTP status code, letting callers distinguish 404 (idempotency
// -safe) from other 4xx responses (genuine failures, see IsNotFound).
func NewPermanentIOErrorWithStatus(statusCode int, err error) PermanentIOError {
	return PermanentIOError{error: err, StatusCode: statusCode}
}

// MappingError marks a per-record expression failure. Never halts the
// resync; accumulated into per-kind counters.
type MappingError struct {
	error
	Kind       string
	Expression string
	Position   int
}

func NewMappingError(kind, expression string, position int, err error) MappingError {
	return MappingError{
		error:      err,
		Kind:       kind,
		Expression: expression,
		Position:   position,
	}
}

func (e MappingError) Error() string {
	return fmt.Sprintf("mapping error (kind=%s expr=%s pos=%d): %s", e.Kind, e.Expression, e.Position, e.error.Error())
}

func (e MappingError) Unwrap() error { return e.error }

// SourceError marks an exception that escaped a source producer. Aborts
// that kind's pipeline and forbids the delete phase for that kind.
type SourceError struct {
	error
	Kind string
}

func NewSourceError(kind string, err error) SourceError {
	return SourceError{error: err, Kind: kind}
}

func (e SourceError) Error() string {
	return fmt.Sprintf("source error (kind=%s): %s", e.Kind, e.error.Error())
}

func (e SourceError) Unwrap() error { return e.error }

// CancellationError is internal plumbing for cooperative cancellation. It
// must never be logged as a failure.
type CancellationError struct{ error }

func NewCancellationError(err error) CancellationError { return CancellationError{err} }

// ThresholdExceededError marks an aborted delete phase because the fraction
// of candidate deletions exceeded the configured entityDeletionThreshold.
// Loud and user-visible.
type ThresholdExceededError struct {
	Kind       string
	Candidate  int
	Attributed int
	Threshold  float64
}

func (e ThresholdExceededError) Error() string {
	return fmt.Sprintf(
		"delete phase aborted for kind %q: %d/%d candidate deletions exceeds threshold %.2f",
		e.Kind, e.Candidate, e.Attributed, e.Threshold,
	)
}

// IsRetryable reports whether err (or a wrapped cause) is a TransientIOError.
func IsRetryable(err error) bool {
	var t TransientIOError
	return errors.As(err, &t)
}

// IsPermanent reports whether err (or a wrapped cause) is a PermanentIOError.
func IsPermanent(err error) bool {
	var p PermanentIOError
	return errors.As(err, &p)
}

// IsNotFound reports whether err (or a wrapped cause) is a PermanentIOError
// carrying a 404 status code.
func IsNotFound(err error) bool {
	var p PermanentIOError
	return errors.As(err, &p) && p.StatusCode == http.StatusNotFound
}
