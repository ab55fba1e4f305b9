// Package config loads the bootstrap configuration for a forgeassets
// process: where assets and batch manifests live on disk, how big the
// strand worker pool is, and how logging is set up.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config is the top-level bootstrap configuration, normally loaded from a
// YAML file via Load.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Logging LoggingConfig `yaml:"logging"`
}

// EngineConfig points the engine at its asset tree and sizes its worker
// pool.
type EngineConfig struct {
	AssetRoot      string `yaml:"asset_root"`
	BatchesRoot    string `yaml:"batches_root"`
	IndexCachePath string `yaml:"index_cache_path"`
	WorkerPoolSize int    `yaml:"worker_pool_size"`
}

// LoggingConfig controls pkg/log's global logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// Default returns the configuration used when no file is present: assets
// and batches under the current directory, worker pool sized to the host.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			AssetRoot:      "./assets",
			BatchesRoot:    "./batches",
			IndexCachePath: "./.forgeassets-index-cache",
			WorkerPoolSize: max(2, runtime.NumCPU()),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path, merging over Default. A missing file is not an error;
// the caller gets Default back unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.Engine.WorkerPoolSize <= 0 {
		cfg.Engine.WorkerPoolSize = max(2, runtime.NumCPU())
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories as needed.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, raw, 0o644)
}
