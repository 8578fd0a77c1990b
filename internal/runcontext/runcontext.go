// Package runcontext carries the explicit per-run ambient state every
// stage of a resync or webhook event threads through: a trace id,
// cooperative cancellation, the metrics sink, and the resolved
// configuration plus its currently cached PortAppConfig (§4.8 expanded).
package runcontext

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/port-labs/ocean-core/internal/config"
	"github.com/port-labs/ocean-core/internal/entity"
	"github.com/port-labs/ocean-core/internal/obs"
)

// RunContext is built once per resync run or per webhook event and passed
// by value down the call chain; its embedded context.Context carries
// cancellation and the logr.Logger (via obs.NewContext).
type RunContext struct {
	context.Context

	TraceID string
	Config  *config.Config
	Metrics *obs.Metrics

	// AppConfig is the PortAppConfig fetched once at the start of this
	// run and reused for every kind/event within it (§4.8: "cached-per-
	// event/per-resync").
	AppConfig *entity.PortAppConfig

	cancel context.CancelCauseFunc
}

// New builds a RunContext with a fresh trace id and a cancellable child
// of parent.
func New(parent context.Context, cfg *config.Config, metrics *obs.Metrics, appConfig *entity.PortAppConfig) RunContext {
	traceID := obs.NewTraceID()
	log := obs.FromContext(parent).WithValues("trace_id", traceID, "integration", cfg.Integration.Identifier)
	ctx := obs.NewContext(parent, log)
	ctx, cancel := context.WithCancelCause(ctx)

	return RunContext{
		Context:   ctx,
		TraceID:   traceID,
		Config:    cfg,
		Metrics:   metrics,
		AppConfig: appConfig,
		cancel:    cancel,
	}
}

// WithKind returns a copy of rc whose logger additionally carries the
// given kind, for per-kind stages within a resync.
func (rc RunContext) WithKind(kind string) RunContext {
	log := obs.FromContext(rc.Context).WithValues("kind", kind)
	rc.Context = obs.NewContext(rc.Context, log)
	return rc
}

// Cancel tears down this run with cause, triggering cooperative
// cancellation in every stage watching rc.Done() (§4.6 "Cancellation.
// Cooperative.").
func (rc RunContext) Cancel(cause error) {
	if rc.cancel != nil {
		rc.cancel(cause)
	}
}

// Log returns the logger carried by this RunContext.
func (rc RunContext) Log() logr.Logger {
	return obs.FromContext(rc.Context)
}
