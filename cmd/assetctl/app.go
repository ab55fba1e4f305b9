package main

import (
	forgeassets "github.com/cuemby/forgeassets"
	"github.com/cuemby/forgeassets/pkg/config"
	"github.com/spf13/cobra"
)

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// newEngine loads the config the command was invoked with and brings up a
// full Engine against the bundled Mesh/Texture/Model registry.
func newEngine(cmd *cobra.Command) (*forgeassets.Engine, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	reg, err := buildRegistry()
	if err != nil {
		return nil, err
	}
	return forgeassets.New(cfg.Engine, reg, nil)
}
