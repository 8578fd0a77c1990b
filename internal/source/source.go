// Package source defines the narrow capability set integration-specific
// code implements once per Kind (§4.1/§4.4) and once per webhook path
// (§4.5): a paginating batch producer and, optionally, a live-event
// processor. internal/resync and internal/webhook drive these interfaces;
// they never contain integration-specific logic themselves.
package source

import "context"

// RawRecord is one integration-specific record, untouched by the core
// until internal/mapping evaluates it. Its shape is opaque: whatever the
// integration's producer yields, C1's selector/mapping expressions see.
type RawRecord = any

// Batch is one page of raw records as handed to the pipeline by a
// RawRecordSource. Producers decide page size; the core never splits or
// merges batches.
type Batch []RawRecord

// RawRecordSource is the per-kind async batch iterator from §4.1/§4.4's
// "user-supplied generators producing lazy sequences of batches" (§9
// REDESIGN FLAGS: "model as an async batch iterator interface with three
// methods"). Implementations are free to page internally (offset, cursor,
// continuation token); the core only ever calls Next until it returns
// ok=false.
type RawRecordSource interface {
	// Next returns the next batch, or ok=false once the source is
	// exhausted. A non-nil error aborts the kind's resync for this
	// source; the delete phase is skipped for that kind (§4.4 invariant).
	Next(ctx context.Context) (batch Batch, ok bool, err error)

	// Close releases any resources (open connections, cursors) held by
	// the source. Called exactly once, whether or not the source was
	// fully consumed — including on cancellation.
	Close(ctx context.Context) error

	// TotalHint optionally reports the total number of records the
	// source expects to yield, for progress metrics. Implementations
	// that cannot know this in advance return (0, false).
	TotalHint(ctx context.Context) (total int, ok bool)
}

// SourceFunc adapts a plain paginating function into a RawRecordSource for
// integrations that have no per-source cleanup or total-count to report —
// the common case.
type SourceFunc func(ctx context.Context) (Batch, bool, error)

// NewSourceFunc wraps fn as a RawRecordSource with no-op Close/TotalHint.
func NewSourceFunc(fn SourceFunc) RawRecordSource {
	return &funcSource{fn: fn}
}

type funcSource struct {
	fn SourceFunc
}

func (s *funcSource) Next(ctx context.Context) (Batch, bool, error) { return s.fn(ctx) }
func (s *funcSource) Close(ctx context.Context) error               { return nil }
func (s *funcSource) TotalHint(ctx context.Context) (int, bool)     { return 0, false }

// Event is a single webhook delivery, wrapped with request metadata per
// §4.5 ("Each payload is wrapped in a WebhookEvent(headers, payload,
// trace_id)").
type Event struct {
	TraceID string
	Path    string
	Headers map[string][]string
	Payload any
}

// HandleResult is what handleEvent returns (§4.5): raw records to upsert
// and raw records to delete, both run through C1 exactly as in resync.
type HandleResult struct {
	Updated Batch
	Deleted Batch
}

// WebhookProcessor is the integration-registered live-event handler from
// §4.5. One processor is registered per path; multiple processors may
// share a path (Open Question, resolved: all matching processors receive
// the event).
type WebhookProcessor interface {
	// ShouldProcessEvent is a cheap predicate deciding whether this
	// processor's queue should receive the event at all.
	ShouldProcessEvent(ctx context.Context, event Event) bool

	// Authenticate verifies the event's headers/payload (e.g. an HMAC
	// signature). A false return drops the event with no retry.
	Authenticate(ctx context.Context, event Event) bool

	// ValidatePayload checks the payload is well-formed for this
	// processor. A false return drops the event with no retry.
	ValidatePayload(ctx context.Context, event Event) bool

	// GetMatchingKinds returns the Kinds this event maps to, each of
	// which is resolved against the cached PortAppConfig to locate a
	// ResourceConfig before HandleEvent runs.
	GetMatchingKinds(ctx context.Context, event Event) []string

	// HandleEvent turns the event payload into raw records to upsert and
	// delete for the given kind. A returned error triggers the
	// requeue-with-backoff policy in §4.5 up to the processor's
	// MaxRetries.
	HandleEvent(ctx context.Context, event Event, kind string) (HandleResult, error)

	// MaxRetries bounds the requeue-with-backoff attempts on a
	// HandleEvent error before the event is dropped with an error
	// counter (§4.5, default 3).
	MaxRetries() int
}
