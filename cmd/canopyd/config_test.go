package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "./data/canopy.db", cfg.Database.DSN)
	assert.Equal(t, "docker", cfg.Docker.ComposeBin)
	assert.Equal(t, 20000, cfg.Engine.PortRangeStart)
	assert.Equal(t, 29999, cfg.Engine.PortRangeEnd)
	assert.Equal(t, "/var/lib/canopy/homes", cfg.Engine.HomesRoot)
	assert.Equal(t, "/var/lib/canopy/stacks", cfg.Engine.StacksRoot)
	assert.Equal(t, "docker-compose.yml", cfg.Engine.ComposeFile)
	assert.Equal(t, 2*time.Minute, cfg.Engine.OpTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	configContent := `
server:
  host: "127.0.0.1"
  port: 9000
  read_timeout: 60s
  shutdown_timeout: 15s

database:
  dsn: "/tmp/test.db"

engine:
  port_range_start: 30000
  port_range_end: 30999
  op_timeout: 5m

log:
  level: "debug"
  format: "text"
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "/tmp/test.db", cfg.Database.DSN)
	assert.Equal(t, 30000, cfg.Engine.PortRangeStart)
	assert.Equal(t, 30999, cfg.Engine.PortRangeEnd)
	assert.Equal(t, 5*time.Minute, cfg.Engine.OpTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	t.Setenv("CANOPY_SERVER_HOST", "192.168.1.1")
	t.Setenv("CANOPY_SERVER_PORT", "3000")
	t.Setenv("CANOPY_DATABASE_DSN", "/custom/path.db")
	t.Setenv("CANOPY_ENGINE_HOMES_ROOT", "/srv/homes")
	t.Setenv("CANOPY_LOG_LEVEL", "warn")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.1", cfg.Server.Host)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "/custom/path.db", cfg.Database.DSN)
	assert.Equal(t, "/srv/homes", cfg.Engine.HomesRoot)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfig_FileNotFound_UsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)

	tmpFile := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("invalid: yaml: content: [[["), 0644))

	_, err := LoadConfig(tmpFile)
	assert.Error(t, err)
}

func TestLoadConfig_InvalidPortRange(t *testing.T) {
	clearEnv(t)

	t.Setenv("CANOPY_ENGINE_PORT_RANGE_START", "25000")
	t.Setenv("CANOPY_ENGINE_PORT_RANGE_END", "20000")

	_, err := LoadConfig("")
	assert.Error(t, err)
}

// =============================================================================
// Logger Setup Tests
// =============================================================================

func TestSetupLogger_Formats(t *testing.T) {
	for _, format := range []string{"json", "text"} {
		cfg := &Config{
			Log: LogConfig{
				Level:  "info",
				Format: format,
			},
		}
		assert.NotNil(t, SetupLogger(cfg))
	}
}

func TestSetupLogger_Levels(t *testing.T) {
	// Unknown levels fall back to info, no panic
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		cfg := &Config{
			Log: LogConfig{
				Level:  level,
				Format: "json",
			},
		}
		assert.NotNil(t, SetupLogger(cfg))
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"CANOPY_SERVER_HOST",
		"CANOPY_SERVER_PORT",
		"CANOPY_DATABASE_DSN",
		"CANOPY_ENGINE_HOMES_ROOT",
		"CANOPY_ENGINE_PORT_RANGE_START",
		"CANOPY_ENGINE_PORT_RANGE_END",
		"CANOPY_LOG_LEVEL",
		"CANOPY_LOG_FORMAT",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}
