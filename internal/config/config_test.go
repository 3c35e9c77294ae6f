package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, "JitRealm", cfg.Server.MudName)
	assert.Equal(t, 100, cfg.GameLoop.LoopDelayMs)
	assert.Equal(t, 2, cfg.GameLoop.DefaultHeartbeatSeconds)
	assert.Equal(t, 250, cfg.Security.HookTimeoutMs)
	assert.Equal(t, 50, cfg.Security.HeartbeatTimeoutMs)
	assert.Equal(t, "rooms/square", cfg.Paths.StartRoom)
	assert.Equal(t, "std/player", cfg.Paths.PlayerBlueprint)
	assert.Equal(t, 60, cfg.Combat.FleeChancePercent)
	assert.Equal(t, 8, cfg.Performance.ForceGcEveryNUnloads)
	assert.False(t, cfg.Memory.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 5555
mud_name = "TestRealm"

[game_loop]
loop_delay_ms = 50

[combat]
flee_chance_percent = 10
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5555, cfg.Server.Port)
	assert.Equal(t, "TestRealm", cfg.Server.MudName)
	assert.Equal(t, 50, cfg.GameLoop.LoopDelayMs)
	assert.Equal(t, 10, cfg.Combat.FleeChancePercent)

	// untouched sections keep their defaults
	assert.Equal(t, 100, cfg.Server.MaxConnections)
	assert.Equal(t, 2, cfg.Combat.RoundIntervalSeconds)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.toml")
	require.NoError(t, os.WriteFile(path, []byte(`[server`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 5555
`), 0o644))

	t.Setenv("JITREALM_PORT", "6666")
	t.Setenv("JITREALM_WORLD_DIR", "/srv/world")
	t.Setenv("JITREALM_LOG_LEVEL", "DEBUG")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 6666, cfg.Server.Port)
	assert.Equal(t, "/srv/world", cfg.Paths.WorldDirectory)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestMemoryDSNEnvEnablesMemory(t *testing.T) {
	t.Setenv("JITREALM_MEMORY_DSN", "postgres://u:p@db:5432/realm")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.True(t, cfg.Memory.Enabled)
	assert.Equal(t, "postgres://u:p@db:5432/realm", cfg.Memory.DSN)
}

func TestBadPortEnvIgnored(t *testing.T) {
	t.Setenv("JITREALM_PORT", "not-a-number")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Server.Port)
}
