package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Engine.AssetRoot, cfg.Engine.AssetRoot)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	cfg.Engine.AssetRoot = "/srv/game/assets"
	cfg.Engine.WorkerPoolSize = 6
	cfg.Logging.Level = "debug"

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/game/assets", loaded.Engine.AssetRoot)
	assert.Equal(t, 6, loaded.Engine.WorkerPoolSize)
	assert.Equal(t, "debug", loaded.Logging.Level)
}

func TestLoadFillsInZeroWorkerPoolSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Save(path, Config{Engine: EngineConfig{AssetRoot: "./a"}}))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Greater(t, loaded.Engine.WorkerPoolSize, 0)
}
