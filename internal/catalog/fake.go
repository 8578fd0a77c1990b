package catalog

import (
	"context"
	"sync"

	"github.com/port-labs/ocean-core/internal/entity"
	oceanerrors "github.com/port-labs/ocean-core/internal/errors"
)

// Fake is an in-memory Client double used by internal/resync and
// internal/webhook tests so they can exercise the reconciliation and
// dispatch logic without a live catalog. It is not a mock of call
// sequences; it behaves like a (small, unindexed) real catalog.
type Fake struct {
	mu sync.Mutex

	AppConfig   entity.PortAppConfig
	Blueprints  map[string]Blueprint
	Entities    map[entity.EntityRef]entity.Entity
	Integration IntegrationSpec
	States      []ResyncState

	// FailUpsert/FailDelete, when non-nil, are returned for every call
	// instead of performing the operation — for exercising failure paths.
	FailUpsert error
	FailDelete error
}

// NewFake returns a ready-to-use Fake.
func NewFake() *Fake {
	return &Fake{
		Blueprints: make(map[string]Blueprint),
		Entities:   make(map[entity.EntityRef]entity.Entity),
	}
}

func (f *Fake) GetPortAppConfig(ctx context.Context, integrationID string) (*entity.PortAppConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg := f.AppConfig
	return &cfg, nil
}

func (f *Fake) GetBlueprint(ctx context.Context, id string) (*Blueprint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bp, ok := f.Blueprints[id]
	if !ok {
		return nil, oceanerrors.NewPermanentIOError(errNotFound(id))
	}
	return &bp, nil
}

func (f *Fake) UpsertEntitiesBatch(ctx context.Context, blueprint string, entities []entity.Entity, opts UpsertOptions) ([]EntityResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailUpsert != nil {
		results := make([]EntityResult, len(entities))
		for i, e := range entities {
			results[i] = EntityResult{Ref: EntityRefInput{Blueprint: blueprint, Identifier: e.Identifier}, Err: f.FailUpsert}
		}
		return results, nil
	}

	results := make([]EntityResult, len(entities))
	for i, e := range entities {
		ref := entity.EntityRef{Blueprint: blueprint, Identifier: e.Identifier}
		if opts.Merge {
			acc := map[entity.EntityRef]entity.Entity{ref: f.Entities[ref]}
			entity.Merge(acc, e)
			f.Entities[ref] = acc[ref]
		} else {
			f.Entities[ref] = e
		}
		results[i] = EntityResult{Ref: EntityRefInput{Blueprint: blueprint, Identifier: e.Identifier}}
	}
	return results, nil
}

func (f *Fake) DeleteEntity(ctx context.Context, blueprint, identifier string, opts DeleteOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailDelete != nil {
		return f.FailDelete
	}
	delete(f.Entities, entity.EntityRef{Blueprint: blueprint, Identifier: identifier})
	return nil
}

func (f *Fake) RegisterIntegration(ctx context.Context, spec IntegrationSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Integration = spec
	return nil
}

func (f *Fake) PatchIntegration(ctx context.Context, integrationID string, state ResyncState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.States = append(f.States, state)
	return nil
}

func (f *Fake) SearchEntitiesByIntegration(ctx context.Context, integrationID string, blueprint string) SearchPage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var refs []entity.EntityRef
	for ref := range f.Entities {
		if ref.Blueprint == blueprint {
			refs = append(refs, ref)
		}
	}
	return &fakeSearchPage{refs: refs}
}

type fakeSearchPage struct {
	refs []entity.EntityRef
	sent bool
}

func (p *fakeSearchPage) Next(ctx context.Context) ([]entity.EntityRef, bool, error) {
	if p.sent {
		return nil, false, nil
	}
	p.sent = true
	return p.refs, len(p.refs) > 0, nil
}

type notFoundError string

func (e notFoundError) Error() string { return "not found: " + string(e) }

func errNotFound(id string) error { return notFoundError(id) }
