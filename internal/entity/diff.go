package entity

import (
	oceanerrors "github.com/port-labs/ocean-core/internal/errors"
)

// DefaultDeletionThreshold is the default entityDeletionThreshold (§6):
// the maximum fraction of catalog-attributed entities of a kind that may be
// deleted in a single resync before the delete phase refuses to run.
const DefaultDeletionThreshold = 0.9

// Diff computes D = attributed \ seen, the candidate set for deletion, per
// §4.2. Entity equality is the (blueprint, identifier) pair; seen and
// attributed need not be sorted or deduplicated by the caller.
func Diff(seen, attributed []EntityRef) []EntityRef {
	seenSet := make(map[EntityRef]struct{}, len(seen))
	for _, ref := range seen {
		seenSet[ref] = struct{}{}
	}

	var toDelete []EntityRef
	deleteSet := make(map[EntityRef]struct{}, len(attributed))
	for _, ref := range attributed {
		if _, ok := seenSet[ref]; ok {
			continue
		}
		if _, ok := deleteSet[ref]; ok {
			continue
		}
		deleteSet[ref] = struct{}{}
		toDelete = append(toDelete, ref)
	}
	return toDelete
}

// GuardDeletion enforces the entityDeletionThreshold guardrail from §4.2:
// |D|/|attributed| must not exceed threshold, else no deletes happen at all
// and a ThresholdExceededError is returned for the caller to surface.
//
// An empty attributed set is never gated: there is nothing this instance
// owns yet, so there is nothing a misconfiguration could wipe.
func GuardDeletion(kind string, toDelete, attributed []EntityRef, threshold float64) error {
	if len(attributed) == 0 {
		return nil
	}
	fraction := float64(len(toDelete)) / float64(len(attributed))
	if fraction > threshold {
		return oceanerrors.ThresholdExceededError{
			Kind:       kind,
			Candidate:  len(toDelete),
			Attributed: len(attributed),
			Threshold:  threshold,
		}
	}
	return nil
}

// Merge folds incoming into the accumulator map keyed by EntityRef,
// implementing the "observed more than once within a single resync is
// merged, last-write-wins on scalars, relations unioned" invariant from §3.
// The catalog's own upsert semantics remain authoritative; this only
// prevents the same batch from emitting the same ref twice with
// contradictory relation sets before it ever reaches the catalog.
func Merge(acc map[EntityRef]Entity, incoming Entity) {
	ref := incoming.Ref()
	existing, ok := acc[ref]
	if !ok {
		acc[ref] = incoming
		return
	}
	merged := incoming
	merged.Relations = mergeRelations(existing.Relations, incoming.Relations)
	acc[ref] = merged
}

func mergeRelations(a, b map[string]any) map[string]any {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		if existing, ok := out[k]; ok {
			out[k] = unionIdentifiers(existing, v)
			continue
		}
		out[k] = v
	}
	return out
}

// unionIdentifiers unions two relation values, each either a single
// identifier string or a []string of identifiers, into a de-duplicated
// []string (or a bare string if the union has exactly one member).
func unionIdentifiers(a, b any) any {
	seen := map[string]struct{}{}
	var order []string
	add := func(v any) {
		switch t := v.(type) {
		case string:
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				order = append(order, t)
			}
		case []string:
			for _, s := range t {
				if _, ok := seen[s]; !ok {
					seen[s] = struct{}{}
					order = append(order, s)
				}
			}
		}
	}
	add(a)
	add(b)
	if len(order) == 1 {
		return order[0]
	}
	return order
}
