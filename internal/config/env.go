package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/iancoleman/strcase"

	oceanerrors "github.com/port-labs/ocean-core/internal/errors"
)

// envPrefix is the required prefix for every recognized environment
// variable (§6: "OCEAN__PORT__CLIENT_ID ... upper-snake-cased mirror of
// the structured config").
const envPrefix = "OCEAN__"

// applyEnv overlays environment variables onto cfg. Any
// OCEAN__INTEGRATION__CONFIG__<KEY> variable becomes an integration.config.*
// entry, since integration-specific config keys are not known to the core
// ahead of time; other unrecognized OCEAN__-prefixed variables are ignored
// rather than rejected.
func applyEnv(cfg *Config) error {
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, envPrefix) {
			continue
		}
		path := strings.Split(strings.TrimPrefix(name, envPrefix), "__")
		if err := applyEnvVar(cfg, path, value); err != nil {
			return err
		}
	}
	return nil
}

func applyEnvVar(cfg *Config, path []string, value string) error {
	key := strings.Join(path, "__")
	switch key {
	case "PORT__CLIENT_ID":
		cfg.Port.ClientID = value
	case "PORT__CLIENT_SECRET":
		cfg.Port.ClientSecret = value
	case "PORT__BASE_URL":
		cfg.Port.BaseURL = value
	case "INTEGRATION__IDENTIFIER":
		cfg.Integration.Identifier = value
	case "INTEGRATION__TYPE":
		cfg.Integration.Type = value
	case "EVENT_LISTENER_TYPE":
		cfg.EventListenerType = EventListenerType(value)
	case "SCHEDULED_RESYNC_INTERVAL":
		d, err := time.ParseDuration(value)
		if err != nil {
			return oceanerrors.NewConfigError(fmt.Errorf("parsing OCEAN__SCHEDULED_RESYNC_INTERVAL: %w", err))
		}
		cfg.ScheduledResyncInterval = d
	case "INITIALIZE_PORT_RESOURCES":
		return setBool(&cfg.InitializePortResources, key, value)
	case "CREATE_MISSING_RELATED_ENTITIES":
		return setBool(&cfg.CreateMissingRelatedEntities, key, value)
	case "DELETE_DEPENDENT_ENTITIES":
		return setBool(&cfg.DeleteDependentEntities, key, value)
	case "ENTITY_DELETION_THRESHOLD":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return oceanerrors.NewConfigError(fmt.Errorf("parsing OCEAN__ENTITY_DELETION_THRESHOLD: %w", err))
		}
		cfg.EntityDeletionThreshold = f
	case "MAX_MAPPING_FAILURE_RATE":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return oceanerrors.NewConfigError(fmt.Errorf("parsing OCEAN__MAX_MAPPING_FAILURE_RATE: %w", err))
		}
		cfg.MaxMappingFailureRate = f
	case "MAX_CONCURRENT_REQUESTS":
		return setInt(&cfg.MaxConcurrentRequests, key, value)
	case "HTTP_TIMEOUT_SECONDS":
		return setInt(&cfg.HTTPTimeoutSeconds, key, value)
	case "VERIFY_SSL":
		return setBool(&cfg.VerifySSL, key, value)
	case "WEBHOOK_PORT":
		return setInt(&cfg.WebhookPort, key, value)
	default:
		if len(path) >= 3 && path[0] == "INTEGRATION" && path[1] == "CONFIG" {
			applyIntegrationConfigVar(cfg, path[2:], value)
		}
	}
	return nil
}

// applyIntegrationConfigVar folds an OCEAN__INTEGRATION__CONFIG__<UPPER_SNAKE>
// variable into cfg.Integration.Config, keyed by the lowerCamel form of the
// remaining path joined with underscores — integration code reads its own
// config keys in the same case convention the mapping layer uses elsewhere.
func applyIntegrationConfigVar(cfg *Config, rest []string, value string) {
	if cfg.Integration.Config == nil {
		cfg.Integration.Config = make(map[string]any)
	}
	snake := strings.ToLower(strings.Join(rest, "_"))
	cfg.Integration.Config[strcase.ToLowerCamel(snake)] = value
}

func setBool(dst *bool, key, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return oceanerrors.NewConfigError(fmt.Errorf("parsing OCEAN__%s as bool: %w", key, err))
	}
	*dst = b
	return nil
}

func setInt(dst *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return oceanerrors.NewConfigError(fmt.Errorf("parsing OCEAN__%s as int: %w", key, err))
	}
	*dst = n
	return nil
}
