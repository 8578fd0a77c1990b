package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/port-labs/ocean-core/internal/config"
	oceanerrors "github.com/port-labs/ocean-core/internal/errors"
)

func newFlagSetWithConfig(path string) *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("config", "", "path to config file")
	flags.String("port-base-url", "", "")
	flags.String("integration-identifier", "", "")
	flags.String("integration-type", "", "")
	flags.String("event-listener-type", "", "")
	_ = flags.Set("config", path)
	return flags
}

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ocean-config.yml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	d := config.Defaults()
	assert.Equal(t, config.EventListenerPolling, d.EventListenerType)
	assert.Equal(t, 0.9, d.EntityDeletionThreshold)
	assert.True(t, d.CreateMissingRelatedEntities)
	assert.Equal(t, 8000, d.WebhookPort)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
port:
  clientId: abc
  clientSecret: secret
  baseUrl: https://api.getport.io
integration:
  identifier: my-jira
  type: jira
eventListenerType: POLLING
`)

	flags := newFlagSetWithConfig(path)
	cfg, err := config.Load(flags)
	require.NoError(t, err)
	assert.Equal(t, "abc", cfg.Port.ClientID)
	assert.Equal(t, "my-jira", cfg.Integration.Identifier)
	assert.Equal(t, config.EventListenerPolling, cfg.EventListenerType)
}

func TestLoadMissingRequiredFieldsFailsValidation(t *testing.T) {
	path := writeConfigFile(t, `
port:
  baseUrl: https://api.getport.io
eventListenerType: POLLING
`)

	flags := newFlagSetWithConfig(path)
	_, err := config.Load(flags)
	require.Error(t, err)
	assert.True(t, oceanerrors.IsPermanent(err) || isConfigError(err))
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
port:
  clientId: abc
  clientSecret: secret
  baseUrl: https://api.getport.io
integration:
  identifier: my-jira
  type: jira
eventListenerType: POLLING
`)

	t.Setenv("OCEAN__PORT__CLIENT_ID", "from-env")
	t.Setenv("OCEAN__INTEGRATION__CONFIG__JIRA_HOST", "https://example.atlassian.net")

	flags := newFlagSetWithConfig(path)
	cfg, err := config.Load(flags)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Port.ClientID)
	assert.Equal(t, "https://example.atlassian.net", cfg.Integration.Config["jiraHost"])
}

func isConfigError(err error) bool {
	for err != nil {
		if _, ok := err.(oceanerrors.ConfigError); ok {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
