package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-labs/anchorage/pkg/config"
)

func TestLoadDefaults(t *testing.T) {
	for _, name := range []string{
		"PORT", "LOG_LEVEL", "DATABASE_URL", "REDIS_ADDR",
		"GRID_PRECISION", "DEDUP_WINDOW_SECS", "CHECKPOINT_INTERVAL_SECS",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "ARCHIVE_DIR",
	} {
		t.Setenv(name, "")
	}

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "anchorage.db", cfg.DatabaseURL)
	assert.False(t, cfg.IsPostgres())
	assert.Equal(t, 0.001, cfg.GridPrecision)
	assert.Equal(t, time.Hour, cfg.DedupWindow)
	assert.Equal(t, 5*time.Minute, cfg.CheckpointInterval)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://anchorage@db:5432/anchorage?sslmode=disable")
	t.Setenv("GRID_PRECISION", "0.01")
	t.Setenv("DEDUP_WINDOW_SECS", "600")
	t.Setenv("CHECKPOINT_INTERVAL_SECS", "120")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.IsPostgres())
	assert.Equal(t, 0.01, cfg.GridPrecision)
	assert.Equal(t, 10*time.Minute, cfg.DedupWindow)
	assert.Equal(t, 2*time.Minute, cfg.CheckpointInterval)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("GRID_PRECISION", "wide")
	t.Setenv("DEDUP_WINDOW_SECS", "soon")

	cfg := config.Load()
	assert.Equal(t, 0.001, cfg.GridPrecision)
	assert.Equal(t, time.Hour, cfg.DedupWindow)
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "profile_stellar.yaml"), []byte(`
name: Stellar mainnet
checkpoint_interval_secs: 120
allowed_rule_types:
  - GEOFENCE_ENTER
`), 0o644))

	p, err := config.LoadProfile(dir, "stellar")
	require.NoError(t, err)
	assert.Equal(t, "stellar", p.Chain)
	assert.Equal(t, 2*time.Minute, p.CheckpointInterval(5*time.Minute))
	assert.Equal(t, time.Hour, p.DedupWindow(time.Hour))
	assert.True(t, p.AllowsRuleType("GEOFENCE_ENTER"))
	assert.False(t, p.AllowsRuleType("PROXIMITY"))

	_, err = config.LoadProfile(dir, "missing")
	assert.Error(t, err)
}

func TestLoadAllProfiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "profile_stellar.yaml"),
		[]byte("name: Stellar\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "profile_testnet.yaml"),
		[]byte("name: Testnet\ngrid_precision: 0.01\n"), 0o644))

	profiles, err := config.LoadAllProfiles(dir)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "stellar", profiles["stellar"].Chain)
	assert.Equal(t, 0.01, profiles["testnet"].GridPrecision)
}
