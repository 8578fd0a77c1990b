// Package webhook implements C6, the live-event dispatcher: an HTTP
// endpoint that enqueues inbound payloads onto per-processor FIFO queues,
// authenticates/validates/matches them against registered
// source.WebhookProcessor implementations, and re-uses internal/resync's
// mapping+upsert plumbing (resync.Runner.ApplyEvent) to apply the resulting
// deltas exactly as a resync batch would (§4.5).
package webhook

import (
	"context"
	"fmt"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/gobwas/glob"

	"github.com/port-labs/ocean-core/internal/catalog"
	"github.com/port-labs/ocean-core/internal/config"
	"github.com/port-labs/ocean-core/internal/mapping"
	"github.com/port-labs/ocean-core/internal/obs"
	"github.com/port-labs/ocean-core/internal/resync"
	"github.com/port-labs/ocean-core/internal/runcontext"
	"github.com/port-labs/ocean-core/internal/source"
)

// defaultHighWaterMark is the per-processor queue depth past which a
// warning is logged (§5, default 1000).
const defaultHighWaterMark = 1000

// registration is one (path pattern, processor) pair from the runtime's
// `.registerWebhookProcessor(path, processor)` builder call (§9). Multiple
// processors may share a path: all matching processors receive every event
// (Open Question, resolved in DESIGN.md).
type registration struct {
	pattern   glob.Glob
	path      string
	processor source.WebhookProcessor
	queue     *eventQueue
}

// Dispatcher is the live-event pipeline: HTTP endpoint -> per-processor
// queue -> authenticate/validate/match -> handleEvent -> mapping -> upsert
// or delete, sharing resync.Runner's upsert/delete primitives and outstanding
// -request budget with any concurrently running resync (§4.5 "Interaction
// with resync").
type Dispatcher struct {
	Catalog catalog.Client
	Runner  *resync.Runner
	Config  *config.Config
	Metrics *obs.Metrics

	highWaterMark int

	mu            sync.Mutex
	registrations []*registration
}

// NewDispatcher builds a Dispatcher with no processors registered yet.
func NewDispatcher(client catalog.Client, runner *resync.Runner, cfg *config.Config, metrics *obs.Metrics) *Dispatcher {
	return &Dispatcher{
		Catalog:       client,
		Runner:        runner,
		Config:        cfg,
		Metrics:       metrics,
		highWaterMark: defaultHighWaterMark,
	}
}

// RegisterProcessor wires proc onto path and starts its dedicated FIFO
// consumer goroutine, bound to ctx's lifetime. path may contain glob
// metacharacters to match a family of sub-paths (e.g. "/webhook/*").
func (d *Dispatcher) RegisterProcessor(ctx context.Context, path string, proc source.WebhookProcessor) error {
	pattern, err := glob.Compile(path)
	if err != nil {
		return fmt.Errorf("compiling webhook path pattern %q: %w", path, err)
	}
	reg := &registration{pattern: pattern, path: path, processor: proc, queue: newEventQueue()}

	d.mu.Lock()
	d.registrations = append(d.registrations, reg)
	d.mu.Unlock()

	go d.consume(ctx, reg)
	return nil
}

// Dispatch implements §4.5 steps 2-3: every registered processor whose
// path pattern matches event.Path and whose ShouldProcessEvent predicate
// returns true gets the event enqueued onto its own queue. Cross-processor
// dispatch is inherently parallel; within one processor's queue, order is
// preserved.
func (d *Dispatcher) Dispatch(ctx context.Context, event source.Event) {
	d.mu.Lock()
	regs := append([]*registration(nil), d.registrations...)
	d.mu.Unlock()

	log := obs.FromContext(ctx)
	for _, reg := range regs {
		if !reg.pattern.Match(event.Path) {
			continue
		}
		if !reg.processor.ShouldProcessEvent(ctx, event) {
			continue
		}
		depth := reg.queue.push(queuedEvent{event: event})
		if depth > d.highWaterMark {
			log.Info("webhook queue depth past high-water-mark", "path", reg.path, "depth", depth)
		}
	}
}

func (d *Dispatcher) consume(ctx context.Context, reg *registration) {
	for {
		item, ok := reg.queue.pop(ctx)
		if !ok {
			return
		}
		d.process(ctx, reg, item.event)
	}
}

// process implements §4.5 steps 4-6 for one dequeued event: authenticate,
// validate, resolve matching kinds, then run each kind's raw records
// through the mapping and catalog writes.
func (d *Dispatcher) process(ctx context.Context, reg *registration, event source.Event) {
	log := obs.FromContext(ctx).WithValues("trace_id", event.TraceID, "path", reg.path)

	if !reg.processor.Authenticate(ctx, event) {
		d.Metrics.WebhookEvents.WithLabelValues(reg.path, "auth_failed").Inc()
		log.Info("webhook event dropped: authentication failed")
		return
	}
	if !reg.processor.ValidatePayload(ctx, event) {
		d.Metrics.WebhookEvents.WithLabelValues(reg.path, "invalid_payload").Inc()
		log.Info("webhook event dropped: invalid payload")
		return
	}

	kinds := reg.processor.GetMatchingKinds(ctx, event)
	if len(kinds) == 0 {
		d.Metrics.WebhookEvents.WithLabelValues(reg.path, "no_match").Inc()
		return
	}

	appConfig, err := d.Catalog.GetPortAppConfig(ctx, d.Config.Integration.Identifier)
	if err != nil {
		log.Error(err, "fetching port app config for webhook event")
		d.Metrics.WebhookEvents.WithLabelValues(reg.path, "config_error").Inc()
		return
	}

	rc := runcontext.New(ctx, d.Config, d.Metrics, appConfig)
	defer rc.Cancel(nil)

	for _, kind := range kinds {
		d.handleKind(rc, reg, event, kind)
	}
	d.Metrics.WebhookEvents.WithLabelValues(reg.path, "processed").Inc()
}

func (d *Dispatcher) handleKind(rc runcontext.RunContext, reg *registration, event source.Event, kind string) {
	krc := rc.WithKind(kind)
	log := krc.Log()

	resourceCfg, ok := krc.AppConfig.ForKind(kind)
	if !ok {
		log.Info("webhook event matched an unconfigured kind, dropping")
		return
	}
	compiled, err := mapping.Compile(resourceCfg)
	if err != nil {
		log.Error(err, "compiling mapping for webhook event")
		return
	}

	result, err := d.withRetry(krc.Context, reg, func() (source.HandleResult, error) {
		return reg.processor.HandleEvent(krc.Context, event, kind)
	})
	if err != nil {
		log.Error(err, "handleEvent failed after exhausting retries, dropping event")
		d.Metrics.WebhookEvents.WithLabelValues(reg.path, "handler_failed").Inc()
		return
	}

	createMissing := resourceCfg.EffectiveCreateMissingRelatedEntities(krc.AppConfig.CreateMissingRelatedEntities)
	deleteDependents := resourceCfg.EffectiveDeleteDependentEntities(krc.AppConfig.DeleteDependentEntities)

	eventResult := d.Runner.ApplyEvent(krc, kind, compiled, createMissing, deleteDependents,
		[]any(result.Updated), []any(result.Deleted))

	log.Info("webhook event applied",
		"entities_upserted", eventResult.EntitiesUpserted,
		"entities_deleted", eventResult.EntitiesDeleted,
		"mapping_failures", eventResult.MappingFailures,
		"write_failures", eventResult.WriteFailures)
}

// withRetry implements §4.5's requeue-with-backoff policy: on a HandleEvent
// error, retry with exponential backoff up to the processor's own
// MaxRetries before giving up and dropping the event.
func (d *Dispatcher) withRetry(ctx context.Context, reg *registration, fn func() (source.HandleResult, error)) (source.HandleResult, error) {
	var result source.HandleResult
	retries := reg.processor.MaxRetries()
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(retries)), ctx)
	err := backoff.Retry(func() error {
		r, err := fn()
		if err != nil {
			return err
		}
		result = r
		return nil
	}, policy)
	return result, err
}
