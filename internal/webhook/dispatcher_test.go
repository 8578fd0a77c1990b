package webhook_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/port-labs/ocean-core/internal/catalog"
	"github.com/port-labs/ocean-core/internal/config"
	"github.com/port-labs/ocean-core/internal/entity"
	"github.com/port-labs/ocean-core/internal/obs"
	"github.com/port-labs/ocean-core/internal/resync"
	"github.com/port-labs/ocean-core/internal/source"
	"github.com/port-labs/ocean-core/internal/webhook"
)

// recordingProcessor implements source.WebhookProcessor and records the
// order HandleEvent is invoked in, for the FIFO property test (§8 property
// 5).
type recordingProcessor struct {
	mu    sync.Mutex
	calls []string

	kind string
}

func (p *recordingProcessor) ShouldProcessEvent(context.Context, source.Event) bool { return true }
func (p *recordingProcessor) Authenticate(context.Context, source.Event) bool       { return true }
func (p *recordingProcessor) ValidatePayload(context.Context, source.Event) bool    { return true }
func (p *recordingProcessor) GetMatchingKinds(context.Context, source.Event) []string {
	return []string{p.kind}
}
func (p *recordingProcessor) MaxRetries() int { return 0 }

func (p *recordingProcessor) HandleEvent(_ context.Context, event source.Event, _ string) (source.HandleResult, error) {
	payload := event.Payload.(map[string]any)

	p.mu.Lock()
	p.calls = append(p.calls, payload["id"].(string))
	p.mu.Unlock()

	// Simulate varying handler latency so a naive concurrent dispatch would
	// reorder completions; the queue must still preserve arrival order.
	if payload["slow"] == true {
		time.Sleep(20 * time.Millisecond)
	}

	if payload["deleted"] == true {
		return source.HandleResult{Deleted: source.Batch{map[string]any{"id": payload["id"]}}}, nil
	}
	return source.HandleResult{Updated: source.Batch{map[string]any{"id": payload["id"], "summary": "new"}}}, nil
}

func (p *recordingProcessor) orderedCalls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}

func newTestDispatcher(t *testing.T, fake *catalog.Fake) *webhook.Dispatcher {
	t.Helper()
	cfg := config.Defaults()
	cfg.Integration.Identifier = "test-integration"
	cfg.MaxConcurrentRequests = 4
	fake.AppConfig = entity.PortAppConfig{
		CreateMissingRelatedEntities: true,
		DeleteDependentEntities:      true,
		Resources: []entity.ResourceConfig{{
			Kind:     "issue",
			Selector: entity.Selector{Query: "true"},
			Port: entity.PortEntityConfig{
				Entity: entity.EntityMappings{
					Identifier: ".id",
					Blueprint:  "\"jiraIssue\"",
					Properties: map[string]string{"summary": ".summary"},
				},
			},
		}},
	}
	runner := resync.NewRunner(fake, cfg.MaxConcurrentRequests)
	metrics := obs.NewMetrics(prometheus.NewRegistry())
	return webhook.NewDispatcher(fake, runner, &cfg, metrics)
}

func TestDispatcherPreservesPerProcessorOrder(t *testing.T) {
	fake := catalog.NewFake()
	d := newTestDispatcher(t, fake)
	proc := &recordingProcessor{kind: "issue"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.RegisterProcessor(ctx, "/webhook", proc); err != nil {
		t.Fatalf("registering processor: %v", err)
	}

	ids := []string{"one", "two", "three", "four"}
	for i, id := range ids {
		d.Dispatch(ctx, source.Event{
			TraceID: id,
			Path:    "/webhook",
			Payload: map[string]any{"id": id, "slow": i == 0},
		})
	}

	waitFor(t, func() bool { return len(proc.orderedCalls()) == len(ids) })

	calls := proc.orderedCalls()
	for i, id := range ids {
		if calls[i] != id {
			t.Fatalf("expected FIFO order %v, got %v", ids, calls)
		}
	}
}

// TestDispatcherUpdateThenDeleteInOneEvent reproduces scenario S5: an
// update event followed by a delete event for a different identifier must
// be applied in that order (upsert before delete).
func TestDispatcherUpdateThenDeleteInOneEvent(t *testing.T) {
	fake := catalog.NewFake()
	fake.Entities[entity.EntityRef{Blueprint: "jiraIssue", Identifier: "B"}] = entity.Entity{
		Identifier: "B", Blueprint: "jiraIssue",
	}
	d := newTestDispatcher(t, fake)
	proc := &recordingProcessor{kind: "issue"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.RegisterProcessor(ctx, "/webhook", proc); err != nil {
		t.Fatalf("registering processor: %v", err)
	}

	d.Dispatch(ctx, source.Event{TraceID: "1", Path: "/webhook", Payload: map[string]any{"id": "A"}})
	d.Dispatch(ctx, source.Event{TraceID: "2", Path: "/webhook", Payload: map[string]any{"id": "B", "deleted": true}})

	waitFor(t, func() bool { return len(proc.orderedCalls()) == 2 })
	if calls := proc.orderedCalls(); calls[0] != "A" || calls[1] != "B" {
		t.Fatalf("expected handleEvent order [A B], got %v", calls)
	}

	if _, ok := fake.Entities[entity.EntityRef{Blueprint: "jiraIssue", Identifier: "A"}]; !ok {
		waitFor(t, func() bool {
			_, ok := fake.Entities[entity.EntityRef{Blueprint: "jiraIssue", Identifier: "A"}]
			return ok
		})
	}
	waitFor(t, func() bool {
		_, ok := fake.Entities[entity.EntityRef{Blueprint: "jiraIssue", Identifier: "B"}]
		return !ok
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
