package resync

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/port-labs/ocean-core/internal/catalog"
	"github.com/port-labs/ocean-core/internal/entity"
	"github.com/port-labs/ocean-core/internal/mapping"
	"github.com/port-labs/ocean-core/internal/runcontext"
)

// DeleteResult is the outcome of the delete phase for one kind.
type DeleteResult struct {
	Kind              string
	Deleted           int
	Failures          int
	ThresholdBreached bool
	Err               error
}

// RunDelete executes §4.4's end-of-resync reconciliation for one kind:
// enumerate the catalog's attributed set, diff against seen, guard on the
// deletion threshold, then delete the remainder. Only called for kinds
// whose KindResult was not Aborted — the caller enforces that invariant.
func (r *Runner) RunDelete(rc runcontext.RunContext, spec KindSpec, seen []entity.EntityRef) DeleteResult {
	rc = rc.WithKind(spec.Kind)
	result := DeleteResult{Kind: spec.Kind}

	attributed, err := r.searchAttributed(rc, blueprintsForKind(spec, seen))
	if err != nil {
		result.Err = fmt.Errorf("searching attributed entities for kind %s: %w", spec.Kind, err)
		return result
	}

	toDelete := entity.Diff(seen, attributed)
	if guardErr := entity.GuardDeletion(spec.Kind, toDelete, attributed, rc.Config.EntityDeletionThreshold); guardErr != nil {
		result.ThresholdBreached = true
		result.Err = guardErr
		rc.Log().Error(guardErr, "deletion threshold exceeded, skipping delete phase", "kind", spec.Kind)
		return result
	}

	deleteDependents := spec.Resource.EffectiveDeleteDependentEntities(rc.AppConfig.DeleteDependentEntities)

	var mu lockedCounters
	var eg errgroup.Group
	eg.SetLimit(mapperParallelism())
	for _, ref := range toDelete {
		ref := ref
		eg.Go(func() error {
			if err := r.Upserts.Acquire(rc.Context, 1); err != nil {
				return nil
			}
			defer r.Upserts.Release(1)

			err := r.Catalog.DeleteEntity(rc.Context, ref.Blueprint, ref.Identifier, catalog.DeleteOptions{
				DeleteDependents: deleteDependents,
			})
			mu.record(err == nil)
			if err != nil {
				rc.Log().Error(err, "delete entity failed", "blueprint", ref.Blueprint, "identifier", ref.Identifier)
			} else {
				rc.Metrics.EntitiesDeleted.WithLabelValues(spec.Kind).Inc()
			}
			return nil
		})
	}
	_ = eg.Wait()

	result.Deleted, result.Failures = mu.counts()
	return result
}

// blueprintsForKind derives the blueprint(s) a kind's entities actually carry
// (§3: a Kind maps 1:N to blueprints). A kind's mapping.blueprint expression
// can be record-dependent, so the authoritative source is the blueprints
// this resync actually produced (seen); the configured blueprint is also
// included when it is a fixed literal, so a kind that produced zero records
// this run still reconciles against whatever it previously attributed under
// that literal id.
func blueprintsForKind(spec KindSpec, seen []entity.EntityRef) []string {
	set := make(map[string]struct{}, len(seen)+1)
	for _, ref := range seen {
		set[ref.Blueprint] = struct{}{}
	}
	if literal, ok := mapping.LiteralBlueprint(spec.Resource.Port.Entity.Blueprint); ok {
		set[literal] = struct{}{}
	}
	blueprints := make([]string, 0, len(set))
	for bp := range set {
		blueprints = append(blueprints, bp)
	}
	return blueprints
}

// searchAttributed enumerates the catalog's attributed entities across every
// blueprint in blueprints, never the kind name itself: SearchEntitiesByIntegration
// filters by blueprint, and a kind is not a blueprint (§3/GLOSSARY).
func (r *Runner) searchAttributed(rc runcontext.RunContext, blueprints []string) ([]entity.EntityRef, error) {
	var all []entity.EntityRef
	for _, blueprint := range blueprints {
		page := r.Catalog.SearchEntitiesByIntegration(rc.Context, rc.Config.Integration.Identifier, blueprint)
		for {
			refs, ok, err := page.Next(rc.Context)
			if err != nil {
				return nil, err
			}
			all = append(all, refs...)
			if !ok {
				break
			}
		}
	}
	return all, nil
}

// lockedCounters is a mutex-guarded success/failure tally for the
// concurrent delete fan-out.
type lockedCounters struct {
	mu      sync.Mutex
	success int
	failure int
}

func (c *lockedCounters) record(ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ok {
		c.success++
	} else {
		c.failure++
	}
}

func (c *lockedCounters) counts() (success, failure int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.success, c.failure
}
