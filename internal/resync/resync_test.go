package resync_test

import (
	"context"
	"testing"

	"github.com/port-labs/ocean-core/internal/catalog"
	"github.com/port-labs/ocean-core/internal/config"
	"github.com/port-labs/ocean-core/internal/entity"
	"github.com/port-labs/ocean-core/internal/mapping"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/port-labs/ocean-core/internal/obs"
	"github.com/port-labs/ocean-core/internal/resync"
	"github.com/port-labs/ocean-core/internal/runcontext"
	"github.com/port-labs/ocean-core/internal/source"
)

func newTestSpec(t *testing.T, kind string, records []any) resync.KindSpec {
	t.Helper()
	return newTestSpecWithBlueprint(t, kind, "service", records)
}

// newTestSpecWithBlueprint lets callers set a blueprint distinct from kind,
// the S2 shape (kind "issue", blueprint "jiraIssue").
func newTestSpecWithBlueprint(t *testing.T, kind, blueprint string, records []any) resync.KindSpec {
	t.Helper()
	rc := entity.ResourceConfig{
		Kind:     kind,
		Selector: entity.Selector{Query: "true"},
		Port: entity.PortEntityConfig{
			Entity: entity.EntityMappings{
				Identifier: ".id",
				Blueprint:  "\"" + blueprint + "\"",
				Properties: map[string]string{"name": ".name"},
			},
		},
	}
	compiled, err := mapping.Compile(rc)
	if err != nil {
		t.Fatalf("compiling mapping: %v", err)
	}

	served := false
	src := source.NewSourceFunc(func(ctx context.Context) (source.Batch, bool, error) {
		if served {
			return nil, false, nil
		}
		served = true
		return source.Batch(records), true, nil
	})

	return resync.KindSpec{Kind: kind, Source: src, Mapping: compiled, Resource: rc}
}

func newTestRunContext(fake *catalog.Fake) runcontext.RunContext {
	cfg := config.Defaults()
	cfg.Integration.Identifier = "test-integration"
	cfg.MaxConcurrentRequests = 4
	appConfig := &entity.PortAppConfig{CreateMissingRelatedEntities: true, DeleteDependentEntities: true}
	metrics := obs.NewMetrics(prometheus.NewRegistry())
	return runcontext.New(context.Background(), &cfg, metrics, appConfig)
}

func TestRunAllCompletesAndDeletesStaleEntities(t *testing.T) {
	fake := catalog.NewFake()
	fake.Entities[entity.EntityRef{Blueprint: "service", Identifier: "stale"}] = entity.Entity{
		Identifier: "stale", Blueprint: "service",
	}

	spec := newTestSpec(t, "service", []any{
		map[string]any{"id": "one", "name": "One"},
		map[string]any{"id": "two", "name": "Two"},
	})

	runner := resync.NewRunner(fake, 4)
	rc := newTestRunContext(fake)

	result := runner.RunAll(rc, []resync.KindSpec{spec})

	if result.State != resync.StateCompleted {
		t.Fatalf("expected StateCompleted, got %v (kind errs: %+v)", result.State, result.Kinds)
	}
	if len(result.Kinds) != 1 || result.Kinds[0].EntitiesUpserted != 2 {
		t.Fatalf("expected 2 entities upserted, got %+v", result.Kinds)
	}
	if len(result.Deletes) != 1 || result.Deletes[0].Deleted != 1 {
		t.Fatalf("expected the stale entity deleted, got %+v", result.Deletes)
	}
	if _, ok := fake.Entities[entity.EntityRef{Blueprint: "service", Identifier: "stale"}]; ok {
		t.Fatalf("stale entity should have been deleted")
	}
	if _, ok := fake.Entities[entity.EntityRef{Blueprint: "service", Identifier: "one"}]; !ok {
		t.Fatalf("entity one should have been upserted")
	}

	if len(fake.States) == 0 {
		t.Fatalf("expected patchIntegration to be called")
	}
	last := fake.States[len(fake.States)-1]
	if last.Status != catalog.ResyncStatusCompleted {
		t.Fatalf("expected final reported status COMPLETED, got %v", last.Status)
	}
}

// TestRunAllDeletesStaleEntitiesWhenKindDiffersFromBlueprint reproduces S2
// with kind "issue" mapped to blueprint "jiraIssue": a kind is not a
// blueprint (§3/GLOSSARY), so the delete phase must enumerate attributed
// entities by blueprint, never by searching under the kind name.
func TestRunAllDeletesStaleEntitiesWhenKindDiffersFromBlueprint(t *testing.T) {
	fake := catalog.NewFake()
	fake.Entities[entity.EntityRef{Blueprint: "jiraIssue", Identifier: "b"}] = entity.Entity{
		Identifier: "b", Blueprint: "jiraIssue",
	}
	fake.Entities[entity.EntityRef{Blueprint: "jiraIssue", Identifier: "c"}] = entity.Entity{
		Identifier: "c", Blueprint: "jiraIssue",
	}

	spec := newTestSpecWithBlueprint(t, "issue", "jiraIssue", []any{
		map[string]any{"id": "a", "name": "A"},
	})

	runner := resync.NewRunner(fake, 4)
	rc := newTestRunContext(fake)

	result := runner.RunAll(rc, []resync.KindSpec{spec})

	if result.State != resync.StateCompleted {
		t.Fatalf("expected StateCompleted, got %v (kind errs: %+v)", result.State, result.Kinds)
	}
	if len(result.Deletes) != 1 || result.Deletes[0].Deleted != 2 {
		t.Fatalf("expected both stale jiraIssue entities deleted, got %+v", result.Deletes)
	}
	if _, ok := fake.Entities[entity.EntityRef{Blueprint: "jiraIssue", Identifier: "b"}]; ok {
		t.Fatalf("stale entity b should have been deleted")
	}
	if _, ok := fake.Entities[entity.EntityRef{Blueprint: "jiraIssue", Identifier: "c"}]; ok {
		t.Fatalf("stale entity c should have been deleted")
	}
	if _, ok := fake.Entities[entity.EntityRef{Blueprint: "jiraIssue", Identifier: "a"}]; !ok {
		t.Fatalf("entity a should have been upserted, not deleted")
	}
}

func TestRunAllSkipsDeleteForAbortedKind(t *testing.T) {
	fake := catalog.NewFake()
	fake.Entities[entity.EntityRef{Blueprint: "service", Identifier: "stale"}] = entity.Entity{
		Identifier: "stale", Blueprint: "service",
	}

	// identifier resolves against a field absent from every record, so
	// every record in this batch fails mapping.
	rc := entity.ResourceConfig{
		Kind:     "service",
		Selector: entity.Selector{Query: "true"},
		Port: entity.PortEntityConfig{
			Entity: entity.EntityMappings{
				Identifier: ".missing.id",
				Blueprint:  "\"service\"",
			},
		},
	}
	compiled, err := mapping.Compile(rc)
	if err != nil {
		t.Fatalf("compiling mapping: %v", err)
	}
	served := false
	src := source.NewSourceFunc(func(ctx context.Context) (source.Batch, bool, error) {
		if served {
			return nil, false, nil
		}
		served = true
		return source.Batch{map[string]any{"id": "one"}}, true, nil
	})
	spec := resync.KindSpec{Kind: "service", Source: src, Mapping: compiled, Resource: rc}

	runner := resync.NewRunner(fake, 4)
	runCtx := newTestRunContext(fake)
	runCtx.Config.MaxMappingFailureRate = 0

	result := runner.RunAll(runCtx, []resync.KindSpec{spec})

	if !result.Kinds[0].Aborted {
		t.Fatalf("expected kind to be aborted by the mapping failure rate guard, got %+v", result.Kinds[0])
	}
	if len(result.Deletes) != 0 {
		t.Fatalf("expected the delete phase to be skipped for an aborted kind, got %+v", result.Deletes)
	}
	if _, ok := fake.Entities[entity.EntityRef{Blueprint: "service", Identifier: "stale"}]; !ok {
		t.Fatalf("stale entity should not have been deleted when its kind aborted")
	}
}

func TestRunAllReportsCancelled(t *testing.T) {
	fake := catalog.NewFake()
	spec := newTestSpec(t, "service", []any{map[string]any{"id": "one", "name": "One"}})

	runner := resync.NewRunner(fake, 4)
	rc := newTestRunContext(fake)
	rc.Cancel(context.Canceled)

	result := runner.RunAll(rc, []resync.KindSpec{spec})

	if result.State != resync.StateCancelled {
		t.Fatalf("expected StateCancelled, got %v", result.State)
	}
	last := fake.States[len(fake.States)-1]
	if last.Status != catalog.ResyncStatusCancelled {
		t.Fatalf("expected final reported status CANCELLED, got %v", last.Status)
	}
}
