package catalog

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	oceanerrors "github.com/port-labs/ocean-core/internal/errors"
)

// RetryPolicy is the §4.3/§7 retry contract: transient errors (5xx, 429,
// transport) are retried with exponential backoff and jitter up to
// MaxAttempts; permanent errors (4xx other than 429) are never retried.
type RetryPolicy struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy matches spec.md §4.3's "up to N attempts (default 5)".
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

func (p RetryPolicy) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	return b
}

// RetryableError is returned by a Do operation to request a retry after an
// explicit wait, honoring a 429 response's Retry-After header (§4.3). A
// zero RetryAfter defers to the backoff policy's own computed interval.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

func (e RetryableError) Error() string { return e.Err.Error() }
func (e RetryableError) Unwrap() error { return e.Err }

// Do runs op up to p.MaxAttempts times, retrying only on a TransientIOError
// (wrapped, optionally, in a RetryableError carrying a server-specified
// wait). Any other error kind — PermanentIOError, ConfigError, a plain
// error — returns immediately without retrying, per §7's propagation
// policy ("4xx are permanent").
func (p RetryPolicy) Do(ctx context.Context, op func(attempt int) error) error {
	b := p.newBackOff()
	var lastErr error
	for attempt := uint64(1); attempt <= p.MaxAttempts; attempt++ {
		lastErr = op(int(attempt))
		if lastErr == nil {
			return nil
		}
		if !oceanerrors.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		wait := b.NextBackOff()
		var retryable RetryableError
		if ok := asRetryable(lastErr, &retryable); ok && retryable.RetryAfter > 0 {
			wait = retryable.RetryAfter
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return oceanerrors.NewCancellationError(ctx.Err())
		case <-timer.C:
		}
	}
	return lastErr
}

func asRetryable(err error, target *RetryableError) bool {
	for err != nil {
		if r, ok := err.(RetryableError); ok {
			*target = r
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// NewBreaker builds the circuit breaker that sits in front of the
// retry-decorated catalog HTTP calls. One breaker is shared by every
// operation of a client: once at least 10 requests have been made in the
// current one-minute window and 34% or more of them failed, the breaker
// opens and fails fast for a 30-second cooldown instead of letting every
// resync/event hammer a struggling catalog.
func NewBreaker(name string) *gobreaker.CircuitBreaker {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.34
		},
	}
	return gobreaker.NewCircuitBreaker(st)
}

// NewLimiter builds the shared token-bucket rate limiter for outbound
// catalog requests: requestsPerSecond sustained, up to burst at once. It
// bounds the request rate, not the number of requests in flight;
// NewHTTPClient builds it with a fixed 20 requests/second and burst of 20.
func NewLimiter(requestsPerSecond float64, burst int) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}
