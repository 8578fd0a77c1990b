package resync

import (
	"github.com/port-labs/ocean-core/internal/catalog"
	"github.com/port-labs/ocean-core/internal/entity"
	"github.com/port-labs/ocean-core/internal/mapping"
	"github.com/port-labs/ocean-core/internal/runcontext"
)

// EventResult is the per-kind outcome of applying one webhook event's
// HandleResult, mirroring the counters KindResult tracks for a resync.
type EventResult struct {
	Kind             string
	EntitiesUpserted int
	EntitiesDeleted  int
	MappingFailures  int
	WriteFailures    int
}

// ApplyEvent runs one kind's slice of a webhook event's raw records through
// C1 exactly as a resync batch would (§4.5 step 6): updated records are
// mapped and upserted, deleted records go through the same full mapping to
// recover their blueprint and identifier and are then deleted (a deleted
// record that fails any mapping expression is counted as a mapping failure
// and not deleted). Unlike RunKind, a mapping or
// write failure here never aborts anything — there is no delete phase to
// gate and no further batches from this event to skip.
func (r *Runner) ApplyEvent(
	rc runcontext.RunContext,
	kind string,
	m *mapping.Compiled,
	createMissing, deleteDependents bool,
	updated, deleted []any,
) EventResult {
	result := EventResult{Kind: kind}

	if len(updated) > 0 {
		eval := mapping.EvaluateBatch(m, updated)
		result.MappingFailures += len(eval.Failures)
		for _, f := range eval.Failures {
			rc.Metrics.MappingFailures.WithLabelValues(kind).Inc()
			rc.Log().Error(f, "mapping failure on webhook event", "position", f.Position)
		}

		byBlueprint := make(map[string][]entity.Entity)
		for _, e := range eval.Entities {
			byBlueprint[e.Blueprint] = append(byBlueprint[e.Blueprint], e)
		}
		for blueprint, entities := range byBlueprint {
			_, upserted, failures := r.upsertBlueprint(rc, kind, blueprint, entities, createMissing)
			result.EntitiesUpserted += upserted
			result.WriteFailures += failures
		}
	}

	if len(deleted) > 0 {
		eval := mapping.EvaluateBatch(m, deleted)
		result.MappingFailures += len(eval.Failures)
		for _, f := range eval.Failures {
			rc.Metrics.MappingFailures.WithLabelValues(kind).Inc()
			rc.Log().Error(f, "mapping failure on webhook deletion", "position", f.Position)
		}
		for _, e := range eval.Entities {
			if err := r.Catalog.DeleteEntity(rc.Context, e.Blueprint, e.Identifier, catalog.DeleteOptions{
				DeleteDependents: deleteDependents,
			}); err != nil {
				result.WriteFailures++
				rc.Log().Error(err, "webhook delete failed", "kind", kind, "identifier", e.Identifier)
				continue
			}
			result.EntitiesDeleted++
			rc.Metrics.EntitiesDeleted.WithLabelValues(kind).Inc()
		}
	}

	return result
}
