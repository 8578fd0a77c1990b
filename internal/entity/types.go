// Package entity holds the in-memory representation of catalog entities and
// the resource-config/mapping document that describes how raw records turn
// into them, plus the set-difference operation used to decide what the
// resync delete phase should remove.
package entity

// EntityRef identifies an entity by the pair the catalog treats as its
// identity: (blueprint, identifier).
type EntityRef struct {
	Blueprint  string `json:"blueprint"`
	Identifier string `json:"identifier"`
}

// Entity is the mapping's output and the unit written to the catalog.
type Entity struct {
	Identifier string         `json:"identifier"`
	Blueprint  string         `json:"blueprint"`
	Title      string         `json:"title,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	// Relations maps a relation name to either a single identifier
	// (string) or a list of identifiers ([]string).
	Relations map[string]any `json:"relations,omitempty"`
}

// Ref returns the EntityRef identity of e.
func (e Entity) Ref() EntityRef {
	return EntityRef{Blueprint: e.Blueprint, Identifier: e.Identifier}
}

// Selector is the opaque-to-the-core filter attached to a ResourceConfig.
// Query is a JQ boolean expression; integrations may layer kind-specific
// fields on top, which the core never inspects.
type Selector struct {
	Query string `json:"query"`
}

// EntityMappings is the declarative translation from a raw record to an
// Entity: one JQ expression per field.
type EntityMappings struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title,omitempty"`
	// Blueprint is either a fixed string or a JQ expression, per the
	// ResourceConfig.port.entity.mappings contract.
	Blueprint  string            `json:"blueprint"`
	Properties map[string]string `json:"properties,omitempty"`
	Relations  map[string]string `json:"relations,omitempty"`
}

// PortEntityConfig is the "port" block of a ResourceConfig: the entity
// mappings plus the optional items-to-parse expression.
type PortEntityConfig struct {
	ItemsToParse string         `json:"itemsToParse,omitempty"`
	Entity       EntityMappings `json:"entity"`
}

// ResourceConfig is the per-Kind configuration: selector, mapping, and
// per-kind overrides of the integration-wide defaults.
type ResourceConfig struct {
	Kind     string           `json:"kind"`
	Selector Selector         `json:"selector"`
	Port     PortEntityConfig `json:"port"`

	// CreateMissingRelatedEntities and DeleteDependentEntities are
	// *bool so "unset" (inherit integration default) is distinguishable
	// from an explicit false.
	CreateMissingRelatedEntities *bool `json:"createMissingRelatedEntities,omitempty"`
	DeleteDependentEntities      *bool `json:"deleteDependentEntities,omitempty"`
}

// EffectiveCreateMissingRelatedEntities resolves the per-kind override
// against the integration-wide default.
func (rc ResourceConfig) EffectiveCreateMissingRelatedEntities(integrationDefault bool) bool {
	if rc.CreateMissingRelatedEntities == nil {
		return integrationDefault
	}
	return *rc.CreateMissingRelatedEntities
}

// EffectiveDeleteDependentEntities resolves the per-kind override against
// the integration-wide default.
func (rc ResourceConfig) EffectiveDeleteDependentEntities(integrationDefault bool) bool {
	if rc.DeleteDependentEntities == nil {
		return integrationDefault
	}
	return *rc.DeleteDependentEntities
}

// PortAppConfig is the full mapping document: every configured kind plus
// integration-wide defaults, cached for the duration of one resync (or one
// webhook event).
type PortAppConfig struct {
	Resources                    []ResourceConfig `json:"resources"`
	CreateMissingRelatedEntities bool             `json:"createMissingRelatedEntities"`
	DeleteDependentEntities      bool             `json:"deleteDependentEntities"`
}

// ForKind returns the ResourceConfig for kind, if configured.
func (c PortAppConfig) ForKind(kind string) (ResourceConfig, bool) {
	for _, rc := range c.Resources {
		if rc.Kind == kind {
			return rc, true
		}
	}
	return ResourceConfig{}, false
}
