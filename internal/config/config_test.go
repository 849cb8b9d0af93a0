package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3000/api", cfg.API.BaseURL)
	assert.Equal(t, 30, cfg.API.TimeoutSecs)
	assert.Equal(t, 3, cfg.API.MaxRetries)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "golden.db", cfg.Store.DatabaseURL)

	assert.Equal(t, 10, cfg.Stream.MaxAttempts)
	assert.Equal(t, 1, cfg.Stream.InitialBackoffSecs)
	assert.Equal(t, 30, cfg.Stream.MaxBackoffSecs)

	assert.Equal(t, 1, cfg.Consensus.MinVotes)
	assert.InDelta(t, 0.1, cfg.Consensus.ConflictThreshold, 1e-9)

	assert.InDelta(t, 0.3, cfg.Quality.Weights.Completeness, 1e-9)
	assert.InDelta(t, 0.3, cfg.Quality.Weights.Accuracy, 1e-9)
	assert.InDelta(t, 0.2, cfg.Quality.Weights.Consistency, 1e-9)
	assert.InDelta(t, 0.2, cfg.Quality.Weights.SourceWeight, 1e-9)

	assert.InDelta(t, 0.6, cfg.Quality.Silver.MinScore, 1e-9)
	assert.Equal(t, 2, cfg.Quality.Silver.MinSources)
	assert.Equal(t, []string{"brand", "category"}, cfg.Quality.Silver.RequiredFields)

	assert.InDelta(t, 0.85, cfg.Quality.Golden.MinScore, 1e-9)
	assert.Equal(t, 3, cfg.Quality.Golden.MinSources)
	assert.Equal(t, []string{"gtin", "brand", "mpn", "category"}, cfg.Quality.Golden.RequiredFields)
	assert.Equal(t, 5, cfg.Quality.Golden.MinSpecs)

	assert.Equal(t, 5, cfg.Batch.Concurrency)
	assert.InDelta(t, 10, cfg.Batch.RatePerSecond, 1e-9)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yaml := `
api:
  base_url: https://pim.example.com/api
store:
  driver: postgres
  database_url: postgres://localhost/golden
quality:
  golden:
    min_score: 0.9
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://pim.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/golden", cfg.Store.DatabaseURL)
	assert.InDelta(t, 0.9, cfg.Quality.Golden.MinScore, 1e-9)

	// Untouched keys keep their defaults.
	assert.Equal(t, 10, cfg.Stream.MaxAttempts)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GOLDEN_STORE_DRIVER", "postgres")
	t.Setenv("GOLDEN_API_TOKEN", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "secret", cfg.API.Token)
}

func TestLoadMalformedConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("api: ["), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "chatty", Format: "json"}))
}
