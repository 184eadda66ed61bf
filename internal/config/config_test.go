package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, Defaults().Validate())
}

func TestLoadCascadeFileThenEnvThenOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
game_host = "file-host"
game_port = 16000
budget_observe_hard_ms = 250
`), 0o644))

	t.Setenv("BEVY_BRP_PORT", "17000")
	t.Setenv("BEVY_BRP_HOST", "")
	t.Setenv("MCP_PORT", "")
	t.Setenv("DEBUGGER_TIMEOUT_SECONDS", "")
	t.Setenv("DEBUGGER_MAX_RETRIES", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("RUST_LOG", "")

	overrideHost := "override-host"
	cfg, err := Load(path, &Overrides{GameHost: &overrideHost})
	require.NoError(t, err)

	assert.Equal(t, "override-host", cfg.GameHost, "override beats file")
	assert.Equal(t, 17000, cfg.GamePort, "env beats file")
	assert.Equal(t, 250, cfg.BudgetObserveHardMs, "file beats default")
	assert.Equal(t, 30, cfg.DefaultDeadlineSeconds, "falls back to default when unset anywhere")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"), nil)
	require.NoError(t, err)
	assert.Equal(t, Defaults().GamePort, cfg.GamePort)
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := Defaults()
	cfg.GamePort = 0
	require.Error(t, cfg.Validate())
}
