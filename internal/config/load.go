package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"

	oceanerrors "github.com/port-labs/ocean-core/internal/errors"
)

// DefaultConfigPath is where the local settings file is looked for when
// --config isn't passed. It sits in the same .port/resources directory as
// a local port-app-config.yml but holds Config, not a PortAppConfig.
const DefaultConfigPath = ".port/resources/ocean-config.yml"

// Load resolves Config from, in increasing precedence: built-in defaults,
// the YAML file at flags' --config path (or DefaultConfigPath, if
// present), environment variables (see env.go), and finally the flags
// themselves. Returns a ConfigError if the YAML file is malformed or the
// resolved Config fails validation.
func Load(flags *pflag.FlagSet) (*Config, error) {
	cfg := Defaults()

	path := DefaultConfigPath
	if flags != nil {
		if p, err := flags.GetString("config"); err == nil && p != "" {
			path = p
		}
	}
	cfg.ConfigPath = path

	if err := applyFile(&cfg, path); err != nil {
		return nil, err
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if flags != nil {
		if err := applyFlags(&cfg, flags); err != nil {
			return nil, err
		}
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return oceanerrors.NewConfigError(fmt.Errorf("reading config file %s: %w", path, err))
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return oceanerrors.NewConfigError(fmt.Errorf("parsing config file %s: %w", path, err))
	}
	return nil
}

func applyFlags(cfg *Config, flags *pflag.FlagSet) error {
	type binding struct {
		name string
		set  func(string) error
	}
	bindings := []binding{
		{"port-base-url", func(v string) error { cfg.Port.BaseURL = v; return nil }},
		{"integration-identifier", func(v string) error { cfg.Integration.Identifier = v; return nil }},
		{"integration-type", func(v string) error { cfg.Integration.Type = v; return nil }},
		{"event-listener-type", func(v string) error { cfg.EventListenerType = EventListenerType(v); return nil }},
	}
	for _, b := range bindings {
		if !flags.Changed(b.name) {
			continue
		}
		v, err := flags.GetString(b.name)
		if err != nil {
			continue
		}
		if err := b.set(v); err != nil {
			return oceanerrors.NewConfigError(err)
		}
	}
	return nil
}
