// Package config resolves the structured configuration object from §6:
// catalog credentials, integration identity, event-listener mode, and the
// HTTP/retry tuning knobs, loaded with defaults -> YAML file -> environment
// -> CLI flag precedence.
package config

import "time"

// EventListenerType selects the runtime's listener mode (§4.6).
type EventListenerType string

const (
	EventListenerPolling      EventListenerType = "POLLING"
	EventListenerKafka        EventListenerType = "KAFKA"
	EventListenerWebhooksOnly EventListenerType = "WEBHOOKS_ONLY"
	EventListenerOnce         EventListenerType = "ONCE"
)

// PortConfig holds the catalog API credentials and base URL.
type PortConfig struct {
	ClientID     string `yaml:"clientId" validate:"required"`
	ClientSecret string `yaml:"clientSecret" validate:"required"`
	BaseURL      string `yaml:"baseUrl" validate:"required,url"`
}

// IntegrationConfig identifies this integration instance and carries its
// integration-specific parameters, which the core never interprets.
type IntegrationConfig struct {
	Identifier string         `yaml:"identifier" validate:"required"`
	Type       string         `yaml:"type" validate:"required"`
	Config     map[string]any `yaml:"config"`
}

// Config is the fully resolved object every stage reads from, mirroring
// the table in §6.
type Config struct {
	Port        PortConfig        `yaml:"port" validate:"required"`
	Integration IntegrationConfig `yaml:"integration" validate:"required"`

	EventListenerType EventListenerType `yaml:"eventListenerType" validate:"required,oneof=POLLING KAFKA WEBHOOKS_ONLY ONCE"`

	ScheduledResyncInterval time.Duration `yaml:"scheduledResyncInterval"`
	InitializePortResources bool          `yaml:"initializePortResources"`

	CreateMissingRelatedEntities bool    `yaml:"createMissingRelatedEntities"`
	DeleteDependentEntities      bool    `yaml:"deleteDependentEntities"`
	EntityDeletionThreshold      float64 `yaml:"entityDeletionThreshold" validate:"gte=0,lte=1"`

	// MaxMappingFailureRate aborts a kind's resync (skipping its delete
	// phase, §4.4 step 4) once the fraction of records that failed
	// mapping exceeds this value. Not in the distilled config table;
	// without it a wildly misconfigured mapping document would still
	// reach the delete phase with a "seen" set missing most real entities.
	MaxMappingFailureRate float64 `yaml:"maxMappingFailureRate" validate:"gte=0,lte=1"`

	MaxConcurrentRequests int  `yaml:"maxConcurrentRequests" validate:"gt=0"`
	HTTPTimeoutSeconds    int  `yaml:"httpTimeoutSeconds" validate:"gt=0"`
	VerifySSL             bool `yaml:"verifySsl"`

	WebhookPort int    `yaml:"webhookPort" validate:"gt=0,lte=65535"`
	ConfigPath  string `yaml:"-"`
}

// Defaults returns the built-in default configuration (§6's Default
// column), the lowest-precedence layer Load starts from.
func Defaults() Config {
	return Config{
		Port: PortConfig{
			BaseURL: "https://api.getport.io",
		},
		EventListenerType:            EventListenerPolling,
		CreateMissingRelatedEntities: true,
		DeleteDependentEntities:      true,
		EntityDeletionThreshold:      0.9,
		MaxMappingFailureRate:        0.5,
		MaxConcurrentRequests:        20,
		HTTPTimeoutSeconds:           30,
		VerifySSL:                    true,
		WebhookPort:                  8000,
	}
}
