package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "gpt-4o", cfg.Model.Name)
	assert.Equal(t, "CHATGPT_API_KEY", cfg.Model.APIKeyEnv)
	assert.Equal(t, 600, cfg.Execution.BudgetSecs)
	assert.Equal(t, "final.xlsx", cfg.Execution.Output)
}

func TestLoadFromFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Model.Name, cfg.Model.Name)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model:
  name: gpt-4o-mini
execution:
  budget_secs: 30
log:
  level: debug
`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", cfg.Model.Name)
	assert.Equal(t, 30, cfg.Execution.BudgetSecs)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched sections keep their defaults.
	assert.Equal(t, "final.xlsx", cfg.Execution.Output)
}

func TestLoadFromFileInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("execution:\n  budget_secs: -5\n"), 0644))

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "budget_secs")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SHEETQL_MODEL", "gpt-4.1")
	t.Setenv("SHEETQL_BUDGET_SECS", "45")
	t.Setenv("SHEETQL_LOG_LEVEL", "warn")

	cfg, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "gpt-4.1", cfg.Model.Name)
	assert.Equal(t, 45, cfg.Execution.BudgetSecs)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Model.Name = "custom"
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", loaded.Model.Name)
}

func TestPaths(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-config")

	p := DefaultPaths()
	assert.Equal(t, "/tmp/xdg-config/sheetql/config.yaml", p.ConfigFile())
	assert.Equal(t, "/tmp/xdg-data/sheetql/stores", p.StoreDir())
	assert.Equal(t, "/tmp/xdg-data/sheetql/logs/sheetql.log", p.LogFile())
}
