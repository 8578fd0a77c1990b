package resync

import (
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/port-labs/ocean-core/internal/catalog"
	"github.com/port-labs/ocean-core/internal/obs"
	"github.com/port-labs/ocean-core/internal/runcontext"
)

// Result is the whole-resync outcome: one KindResult per kind plus the
// overall state the run ended in.
type Result struct {
	State    State
	Started  time.Time
	Finished time.Time
	Kinds    []KindResult
	Deletes  []DeleteResult
}

// RunAll drives the full state machine from §4.4 across every kind:
// STARTING -> FETCHING_CONFIG (the caller has already resolved
// rc.AppConfig by this point) -> KINDS_RUNNING -> DELETING -> COMPLETED,
// reporting each state it enters via patchIntegration (FETCHING_CONFIG is
// not reported, since it happened before RunAll). A cancelled context or
// any kind's unrecoverable error still runs to FAILED/CANCELLED, never
// straight to the delete phase for an aborted kind.
func (r *Runner) RunAll(rc runcontext.RunContext, specs []KindSpec) Result {
	started := time.Now()
	result := Result{State: StateStarting, Started: started}
	r.report(rc, StateStarting, result)

	r.report(rc, StateKindsRunning, result)
	result.State = StateKindsRunning

	var eg errgroup.Group
	kindResults := make([]KindResult, len(specs))
	for i, spec := range specs {
		i, spec := i, spec
		eg.Go(func() error {
			kindResults[i] = r.RunKind(rc, spec)
			return nil
		})
	}
	_ = eg.Wait()
	result.Kinds = kindResults

	select {
	case <-rc.Context.Done():
		result.State = StateCancelled
		result.Finished = time.Now()
		r.report(rc, StateCancelled, result)
		return result
	default:
	}

	if allAborted(kindResults) {
		result.State = StateFailed
		result.Finished = time.Now()
		r.report(rc, StateFailed, result)
		return result
	}

	result.State = StateDeleting
	r.report(rc, StateDeleting, result)

	var deleteResults []DeleteResult
	var dmu sync.Mutex
	var deg errgroup.Group
	for i, spec := range specs {
		kr := kindResults[i]
		if kr.Aborted {
			rc.WithKind(spec.Kind).Log().Info("skipping delete phase for aborted kind", "kind", spec.Kind)
			continue
		}
		spec := spec
		kr := kr
		deg.Go(func() error {
			dr := r.RunDelete(rc, spec, kr.Seen)
			dmu.Lock()
			deleteResults = append(deleteResults, dr)
			dmu.Unlock()
			return nil
		})
	}
	_ = deg.Wait()
	result.Deletes = deleteResults

	// Resync-level status is the disjunction of kind states (§7): one kind
	// aborting still fails the run even though its siblings completed and
	// had their delete phases run.
	result.State = StateCompleted
	if anyAborted(kindResults) {
		result.State = StateFailed
	}
	result.Finished = time.Now()
	r.report(rc, result.State, result)
	return result
}

func anyAborted(results []KindResult) bool {
	for _, r := range results {
		if r.Aborted {
			return true
		}
	}
	return false
}

func allAborted(results []KindResult) bool {
	for _, r := range results {
		if !r.Aborted {
			return false
		}
	}
	return len(results) > 0
}

func (r *Runner) report(rc runcontext.RunContext, st State, result Result) {
	recordsSeen, upserted, deleted, failures := 0, 0, 0, 0
	thresholdBreached := false
	for _, k := range result.Kinds {
		recordsSeen += k.RecordsSeen
		upserted += k.EntitiesUpserted
		failures += k.MappingFailures + k.WriteFailures
	}
	for _, d := range result.Deletes {
		deleted += d.Deleted
		failures += d.Failures
		thresholdBreached = thresholdBreached || d.ThresholdBreached
	}

	err := r.Catalog.PatchIntegration(rc.Context, rc.Config.Integration.Identifier, catalog.ResyncState{
		Status:            st.resyncStatus(),
		RecordsSeen:       recordsSeen,
		EntitiesUpserted:  upserted,
		EntitiesDeleted:   deleted,
		Failures:          failures,
		ThresholdBreached: thresholdBreached,
	})
	if err != nil {
		rc.Log().Error(err, "patchIntegration failed", "state", st)
	}

	if st.terminal() {
		status := obs.StatusCompleted
		switch st {
		case StateFailed:
			status = obs.StatusFailed
		case StateCancelled:
			status = obs.StatusCancelled
		}
		summary := Summary(rc.TraceID, rc.Config.Integration.Identifier, result.Started, status, result.Kinds)
		summary.Finished = result.Finished
		summary.EntitiesDeleted = deleted
		summary.ThresholdBreached = thresholdBreached
		summary.Log(rc.Log())
	}
}
