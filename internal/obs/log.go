// Package obs holds the runtime's observability hooks: the logr.Logger
// carried through context.Context (§4.9), the prometheus metrics surface,
// and the structured per-resync/per-event summary event from §7.
package obs

import (
	"context"

	"github.com/go-logr/logr"
)

type contextKey struct{}

// NewContext returns a copy of ctx carrying log, retrievable with
// FromContext. Mirrors the teacher's own logr.Logger-over-context.Context
// convention (its `log.FromContext(ctx)` calls throughout internal/updater
// and cmd/operator-controller).
func NewContext(ctx context.Context, log logr.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, log)
}

// FromContext returns the logr.Logger stashed in ctx by NewContext, or
// logr.Discard() if none was ever attached — callers never need a nil
// check.
func FromContext(ctx context.Context) logr.Logger {
	if log, ok := ctx.Value(contextKey{}).(logr.Logger); ok {
		return log
	}
	return logr.Discard()
}
