// Package config loads the server configuration from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stepflow-ai/stepflow/graph"
)

// GraphDef is a declarative graph definition preloaded at startup, so a
// deployment can ship its workflows alongside the server instead of
// creating them over HTTP after every restart (graphs are in-memory
// only).
type GraphDef struct {
	// Name labels the definition in startup logs.
	Name string `yaml:"name"`

	Nodes     []string                  `yaml:"nodes"`
	StartNode string                    `yaml:"start_node"`
	Edges     map[string]graph.RuleSpec `yaml:"edges"`
}

// Config is the full server configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// MaxSteps overrides the per-run step cap when positive.
	MaxSteps int `yaml:"max_steps"`

	// LogJSON switches engine event logging from text to JSONL.
	LogJSON bool `yaml:"log_json"`

	// Graphs are created at startup, in order.
	Graphs []GraphDef `yaml:"graphs"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen:   ":8000",
		MaxSteps: graph.DefaultMaxSteps,
	}
}

// Load reads and validates a YAML configuration file. Fields left unset
// fall back to defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Listen == "" {
		cfg.Listen = ":8000"
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = graph.DefaultMaxSteps
	}

	for i, def := range cfg.Graphs {
		if len(def.Nodes) == 0 {
			return nil, fmt.Errorf("config graph %d (%s): nodes are required", i, def.Name)
		}
		if def.StartNode == "" {
			return nil, fmt.Errorf("config graph %d (%s): start_node is required", i, def.Name)
		}
	}
	return cfg, nil
}
