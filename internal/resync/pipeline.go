// Package resync implements the C5 pipeline: per-kind source -> filter +
// mapper -> aggregator -> batched upsert, bounded parallelism across kinds,
// and the end-of-resync delete phase with its threshold guardrail.
package resync

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/port-labs/ocean-core/internal/catalog"
	"github.com/port-labs/ocean-core/internal/entity"
	"github.com/port-labs/ocean-core/internal/mapping"
	oceanerrors "github.com/port-labs/ocean-core/internal/errors"
	"github.com/port-labs/ocean-core/internal/obs"
	"github.com/port-labs/ocean-core/internal/runcontext"
	"github.com/port-labs/ocean-core/internal/source"
)

// KindSpec is everything one kind's resync needs: its compiled mapping,
// its raw record producer, and the resolved per-kind options.
type KindSpec struct {
	Kind     string
	Source   source.RawRecordSource
	Mapping  *mapping.Compiled
	Resource entity.ResourceConfig
}

// KindResult is the per-kind outcome fed into the delete phase and the
// summary event.
type KindResult struct {
	Kind             string
	Seen             []entity.EntityRef
	RecordsSeen      int
	EntitiesUpserted int
	MappingFailures  int
	WriteFailures    int
	Aborted          bool
	Err              error
}

// mapperParallelism is the CPU-bound pool size for the filter+mapper
// stage (§4.4: "default = CPU count, clamped to [2, 16]").
func mapperParallelism() int {
	n := runtime.NumCPU()
	if n < 2 {
		return 2
	}
	if n > 16 {
		return 16
	}
	return n
}

// Runner drives one resync across all configured kinds.
type Runner struct {
	Catalog catalog.Client
	Upserts *semaphore.Weighted // global outstanding-upsert bound across kinds (§4.4)
}

// NewRunner builds a Runner with the outstanding-upsert semaphore sized
// per maxConcurrentRequests (§5/§6). The per-call batch size (§4.3, default
// 20) is the catalog client's concern (see catalog.DefaultBatchSize /
// HTTPClient.batchSize): UpsertEntitiesBatch chunks internally, so the
// Runner has nothing to configure here.
func NewRunner(client catalog.Client, maxConcurrentRequests int) *Runner {
	return &Runner{
		Catalog: client,
		Upserts: semaphore.NewWeighted(int64(maxConcurrentRequests)),
	}
}

// RunKind executes the full source -> mapper -> aggregator -> upsert
// pipeline for one kind. It never returns early on a per-record or
// per-entity failure; only a source error, a cancelled context, or the
// mapping-failure-rate guard abort the kind (aborting skips its delete
// phase, §4.4 step 4).
func (r *Runner) RunKind(rc runcontext.RunContext, spec KindSpec) KindResult {
	rc = rc.WithKind(spec.Kind)
	log := rc.Log()
	defer func() {
		if err := spec.Source.Close(rc.Context); err != nil {
			log.Error(err, "closing source")
		}
	}()

	createMissing := spec.Resource.EffectiveCreateMissingRelatedEntities(rc.AppConfig.CreateMissingRelatedEntities)

	result := KindResult{Kind: spec.Kind}
	var mu sync.Mutex
	var eg errgroup.Group
	eg.SetLimit(mapperParallelism())

	for {
		select {
		case <-rc.Context.Done():
			result.Aborted = true
			result.Err = oceanerrors.NewCancellationError(rc.Context.Err())
			_ = eg.Wait()
			return result
		default:
		}

		batch, ok, err := spec.Source.Next(rc.Context)
		if err != nil {
			result.Aborted = true
			result.Err = fmt.Errorf("source for kind %s: %w", spec.Kind, err)
			_ = eg.Wait()
			return result
		}
		if !ok {
			break
		}

		currentBatch := batch
		eg.Go(func() error {
			r.processBatch(spec, currentBatch, createMissing, &mu, &result, rc)
			return nil
		})
	}

	_ = eg.Wait() // processBatch never returns an error; per-batch failures are recorded on result instead

	if result.RecordsSeen > 0 {
		rate := float64(result.MappingFailures) / float64(result.RecordsSeen)
		if rate > rc.Config.MaxMappingFailureRate {
			result.Aborted = true
			result.Err = fmt.Errorf("kind %s mapping failure rate %.2f exceeds limit %.2f",
				spec.Kind, rate, rc.Config.MaxMappingFailureRate)
		}
	}
	return result
}

func (r *Runner) processBatch(
	spec KindSpec,
	batch source.Batch,
	createMissing bool,
	mu *sync.Mutex,
	result *KindResult,
	rc runcontext.RunContext,
) {
	evalResult := mapping.EvaluateBatch(spec.Mapping, batch)

	mu.Lock()
	result.RecordsSeen += len(batch)
	result.MappingFailures += len(evalResult.Failures)
	for _, f := range evalResult.Failures {
		rc.Metrics.MappingFailures.WithLabelValues(spec.Kind).Inc()
		rc.Log().Error(f, "mapping failure", "position", f.Position)
	}
	mu.Unlock()
	rc.Metrics.RecordsSeen.WithLabelValues(spec.Kind).Add(float64(len(batch)))

	// Entities in one batch may target different blueprints (the mapping's
	// blueprint field can itself be a JQ expression), but upsertEntitiesBatch
	// is scoped to a single blueprint per call (§6), so group before writing.
	byBlueprint := make(map[string][]entity.Entity)
	for _, e := range evalResult.Entities {
		byBlueprint[e.Blueprint] = append(byBlueprint[e.Blueprint], e)
	}

	for blueprint, entities := range byBlueprint {
		r.upsertGroup(rc, spec, blueprint, entities, createMissing, mu, result)
	}
}

func (r *Runner) upsertGroup(
	rc runcontext.RunContext,
	spec KindSpec,
	blueprint string,
	entities []entity.Entity,
	createMissing bool,
	mu *sync.Mutex,
	result *KindResult,
) {
	seen, upserted, failures := r.upsertBlueprint(rc, spec.Kind, blueprint, entities, createMissing)

	mu.Lock()
	defer mu.Unlock()
	result.EntitiesUpserted += upserted
	result.WriteFailures += failures
	result.Seen = append(result.Seen, seen...)
}

// upsertBlueprint writes one blueprint-homogeneous group of entities,
// bounded by the global outstanding-upsert semaphore. Shared by the resync
// pipeline and the webhook event path (§4.5 step 6: "flow through C1
// exactly as in resync").
func (r *Runner) upsertBlueprint(
	rc runcontext.RunContext,
	kind, blueprint string,
	entities []entity.Entity,
	createMissing bool,
) (seen []entity.EntityRef, upserted, failures int) {
	if len(entities) == 0 {
		return nil, 0, 0
	}
	if err := r.Upserts.Acquire(rc.Context, 1); err != nil {
		return nil, 0, 0
	}
	defer r.Upserts.Release(1)

	start := time.Now()
	results, err := r.Catalog.UpsertEntitiesBatch(rc.Context, blueprint, entities, catalog.UpsertOptions{
		CreateMissingRelatedEntities: createMissing,
		Merge:                        true,
	})
	rc.Metrics.CatalogRequestDur.WithLabelValues("upsertEntitiesBatch").Observe(time.Since(start).Seconds())

	if err != nil {
		rc.Log().Error(err, "upsert batch failed", "kind", kind, "blueprint", blueprint, "count", len(entities))
		return nil, 0, len(entities)
	}
	for _, er := range results {
		if er.Err != nil {
			failures++
			rc.Log().Error(er.Err, "entity upsert failed", "kind", kind, "identifier", er.Ref.Identifier)
			continue
		}
		upserted++
		seen = append(seen, entity.EntityRef{Blueprint: er.Ref.Blueprint, Identifier: er.Ref.Identifier})
		rc.Metrics.EntitiesUpserted.WithLabelValues(kind).Inc()
	}
	return seen, upserted, failures
}

// Summary folds per-kind results into the event emitted at the end of the
// whole resync (§7). Finished is set to started and the delete-phase fields
// (EntitiesDeleted, ThresholdBreached) are left zero; the caller fills them
// in once the run has ended.
func Summary(traceID, integration string, started time.Time, status obs.Status, results []KindResult) obs.Summary {
	s := obs.Summary{
		TraceID:     traceID,
		Integration: integration,
		Started:     started,
		Finished:    started,
		Status:      status,
	}
	for _, r := range results {
		s.RecordsSeen += r.RecordsSeen
		s.EntitiesUpserted += r.EntitiesUpserted
		s.MappingFailures += r.MappingFailures
		s.WriteFailures += r.WriteFailures
	}
	return s
}
