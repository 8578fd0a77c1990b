// Package catalog is the typed abstraction over the remote software catalog
// ("Port") the runtime reconciles into, per §4.3/§6. It owns retry/backoff,
// circuit breaking, and rate limiting for every outbound call; callers never
// see a raw *http.Response.
package catalog

import (
	"context"

	"github.com/port-labs/ocean-core/internal/entity"
)

// UpsertOptions controls how UpsertEntitiesBatch writes each entity.
type UpsertOptions struct {
	CreateMissingRelatedEntities bool
	Merge                        bool
}

// DeleteOptions controls how DeleteEntity removes an entity.
type DeleteOptions struct {
	DeleteDependents bool
}

// EntityResult is the per-entity outcome of a batch upsert: entities in a
// batch are written independently, so one entity's failure never aborts
// the rest (§4.3 "Batching... Failures per-entity are isolated").
type EntityResult struct {
	Ref EntityRefInput
	Err error
}

// EntityRefInput names the entity an EntityResult is about.
type EntityRefInput struct {
	Blueprint  string
	Identifier string
}

// Blueprint is the schema descriptor returned by GetBlueprint. The core
// does not interpret its contents beyond existence; deep schema validation
// is the catalog's job.
type Blueprint struct {
	Identifier string         `json:"identifier"`
	Schema     map[string]any `json:"schema"`
}

// IntegrationSpec is the identity and capability declaration sent to
// registerIntegration on first boot.
type IntegrationSpec struct {
	Identifier string `json:"identifier"`
	Type       string `json:"integrationType"`
	Version    string `json:"version"`
}

// ResyncStatus mirrors the state machine in §4.4.
type ResyncStatus string

const (
	ResyncStatusRunning   ResyncStatus = "RUNNING"
	ResyncStatusCompleted ResyncStatus = "COMPLETED"
	ResyncStatusFailed    ResyncStatus = "FAILED"
	ResyncStatusCancelled ResyncStatus = "CANCELLED"
)

// ResyncState is what patchIntegration reports back to users on every
// state-machine transition (§4.4, §7 "every resync/event emits a summary
// event").
type ResyncState struct {
	Status            ResyncStatus `json:"status"`
	RecordsSeen       int          `json:"recordsSeen"`
	EntitiesUpserted  int          `json:"entitiesUpserted"`
	EntitiesDeleted   int          `json:"entitiesDeleted"`
	Failures          int          `json:"failures"`
	ThresholdBreached bool         `json:"thresholdBreached"`
}

// SearchResultRef is one page element from SearchEntitiesByIntegration.
type SearchResultRef struct {
	entity.EntityRef
}

// SearchPage iterates the paginated results of SearchEntitiesByIntegration
// without requiring the caller to buffer the whole attributed set in
// memory up front (consistent with the streaming posture of §4.4 step 1).
type SearchPage interface {
	// Next returns the next page of refs. io.EOF-equivalent termination
	// is signaled by returning a zero-length slice and ok=false.
	Next(ctx context.Context) (refs []entity.EntityRef, ok bool, err error)
}

// Client is the narrow typed surface of §4.3/§6 that internal/resync and
// internal/webhook call against. Integration-specific HTTP plumbing lives
// behind the concrete *HTTPClient; tests use the in-memory fake in
// fake.go.
type Client interface {
	GetPortAppConfig(ctx context.Context, integrationID string) (*entity.PortAppConfig, error)
	GetBlueprint(ctx context.Context, id string) (*Blueprint, error)
	UpsertEntitiesBatch(ctx context.Context, blueprint string, entities []entity.Entity, opts UpsertOptions) ([]EntityResult, error)
	SearchEntitiesByIntegration(ctx context.Context, integrationID string, blueprint string) SearchPage
	DeleteEntity(ctx context.Context, blueprint, identifier string, opts DeleteOptions) error
	RegisterIntegration(ctx context.Context, spec IntegrationSpec) error
	PatchIntegration(ctx context.Context, integrationID string, state ResyncState) error
}
