package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8545", cfg.RPCAddress)
	require.Equal(t, "./gig-data", cfg.DataDir)
	require.Equal(t, "gigd", cfg.ServiceName)
	require.Equal(t, float64(120), cfg.RateLimitPerMin)
	require.Equal(t, 20, cfg.RateLimitBurst)

	// The default file was persisted and loads back cleanly.
	_, err = os.Stat(path)
	require.NoError(t, err)
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, reloaded)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("RPCAddress = \":8545\"\nDataDir = \"./data\"\nRateLimtPerMin = 60\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown keys")
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("DataDir = \"/var/lib/gigd\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/gigd", cfg.DataDir)
	require.Equal(t, ":8545", cfg.RPCAddress)
}

func TestValidateRejectsNegativeRateLimit(t *testing.T) {
	cfg := &Config{RPCAddress: ":8545", DataDir: "./data", RateLimitPerMin: -1}
	require.Error(t, cfg.Validate())

	cfg = &Config{RPCAddress: ":8545", DataDir: "./data", RateLimitBurst: -1}
	require.Error(t, cfg.Validate())
}
