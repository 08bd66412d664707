package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "directory:\n  base_url: https://actionnetwork.org/api/v2\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://actionnetwork.org/api/v2", cfg.Directory.BaseURL)
	assert.Equal(t, "action_network", cfg.Directory.IDNamespace)
	assert.Equal(t, 3, cfg.Directory.RetryAttempts)
	assert.Equal(t, 5, cfg.Directory.RetryDelaySeconds)
	assert.Equal(t, 200, cfg.Sync.BatchSize)
	assert.Equal(t, 60, cfg.Sync.GraceDays)
	assert.Equal(t, 10, cfg.Identity.UsernameAttempts)
	assert.Equal(t, "roster_sync_state", cfg.State.Table)
}

func TestLoad_ExplicitValues(t *testing.T) {
	path := writeConfig(t, `
sync:
  batch_size: 50
  grace_days: 30
  dry_run: true
state:
  table: custom_state
  region: us-west-2
cache:
  enabled: true
  addr: localhost:6379
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Sync.BatchSize)
	assert.Equal(t, 30, cfg.Sync.GraceDays)
	assert.True(t, cfg.Sync.DryRun)
	assert.Equal(t, "custom_state", cfg.State.Table)
	assert.True(t, cfg.Cache.Enabled)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	path := writeConfig(t, "directory:\n  api_key: from-yaml\n")

	t.Setenv("DIRECTORY_API_KEY", "from-env")
	t.Setenv("STATE_TABLE", "env_state")
	t.Setenv("DRY_RUN", "1")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Directory.APIKey)
	assert.Equal(t, "env_state", cfg.State.Table)
	assert.True(t, cfg.Sync.DryRun)
}

func TestDirectoryConfig_Durations(t *testing.T) {
	cfg := DirectoryConfig{TimeoutSeconds: 10, RetryDelaySeconds: 5}
	assert.Equal(t, "10s", cfg.Timeout().String())
	assert.Equal(t, "5s", cfg.RetryDelay().String())
}
