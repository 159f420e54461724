// Package config provides configuration loading and management for
// taskqueen: the run-level settings that sit above a single coordinator
// instance (where the project lives, how many workers to run, how the
// regression gate is shaped).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/taskqueen/queen"
)

// Config is the complete taskqueen configuration.
type Config struct {
	Repo  RepoConfig  `yaml:"repo"`
	Queen QueenConfig `yaml:"queen"`
	Gate  GateConfig  `yaml:"gate"`
}

// RepoConfig configures the project root taskqueen operates against.
type RepoConfig struct {
	// Path is the project root (auto-detected from git if empty).
	Path string `yaml:"path"`
}

// QueenConfig mirrors queen.Config's tunables so they can be set from
// YAML; ApplyTo copies them onto a queen.Config built for a specific run.
type QueenConfig struct {
	MaxConcurrentWorkers int    `yaml:"maxConcurrentWorkers"`
	WorkerTimeoutMs      int    `yaml:"workerTimeoutMs"`
	MainLoopIntervalMs   int    `yaml:"mainLoopIntervalMs"`
	ModelStrategy        string `yaml:"modelStrategy"`
	DefaultWorkerModel   string `yaml:"defaultWorkerModel"`
	TestFramework        string `yaml:"testFramework"`
	TestDirectory        string `yaml:"testDirectory"`
}

// Merge overlays other's non-zero fields onto c.
func (c QueenConfig) Merge(other QueenConfig) QueenConfig {
	if other.MaxConcurrentWorkers != 0 {
		c.MaxConcurrentWorkers = other.MaxConcurrentWorkers
	}
	if other.WorkerTimeoutMs != 0 {
		c.WorkerTimeoutMs = other.WorkerTimeoutMs
	}
	if other.MainLoopIntervalMs != 0 {
		c.MainLoopIntervalMs = other.MainLoopIntervalMs
	}
	if other.ModelStrategy != "" {
		c.ModelStrategy = other.ModelStrategy
	}
	if other.DefaultWorkerModel != "" {
		c.DefaultWorkerModel = other.DefaultWorkerModel
	}
	if other.TestFramework != "" {
		c.TestFramework = other.TestFramework
	}
	if other.TestDirectory != "" {
		c.TestDirectory = other.TestDirectory
	}
	return c
}

// ApplyTo overlays the non-zero fields of c onto a queen.Config.
func (c QueenConfig) ApplyTo(qc queen.Config) queen.Config {
	if c.MaxConcurrentWorkers != 0 {
		qc.MaxConcurrentWorkers = c.MaxConcurrentWorkers
	}
	if c.WorkerTimeoutMs != 0 {
		qc.WorkerTimeoutMs = c.WorkerTimeoutMs
	}
	if c.MainLoopIntervalMs != 0 {
		qc.MainLoopIntervalMs = c.MainLoopIntervalMs
	}
	if c.ModelStrategy != "" {
		qc.ModelStrategy = c.ModelStrategy
	}
	if c.DefaultWorkerModel != "" {
		qc.DefaultWorkerModel = c.DefaultWorkerModel
	}
	if c.TestFramework != "" {
		qc.TestFramework = c.TestFramework
	}
	if c.TestDirectory != "" {
		qc.TestDirectory = c.TestDirectory
	}
	return qc
}

// GateConfig configures the regression gate.
type GateConfig struct {
	// RequireCleanBaseline is loaded, merged and saved with the rest of
	// the config, but no component reads it: the regression gate runs the
	// same way whether or not it is set.
	RequireCleanBaseline bool `yaml:"requireCleanBaseline"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	qc := queen.DefaultConfig()
	return &Config{
		Repo: RepoConfig{Path: ""},
		Queen: QueenConfig{
			MaxConcurrentWorkers: qc.MaxConcurrentWorkers,
			WorkerTimeoutMs:      qc.WorkerTimeoutMs,
			MainLoopIntervalMs:   qc.MainLoopIntervalMs,
			ModelStrategy:        qc.ModelStrategy,
			DefaultWorkerModel:   qc.DefaultWorkerModel,
			TestDirectory:        qc.TestDirectory,
		},
		Gate: GateConfig{RequireCleanBaseline: false},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Repo.Path == "" {
		return fmt.Errorf("repo.path is required")
	}
	if c.Queen.MaxConcurrentWorkers < 0 {
		return fmt.Errorf("queen.maxConcurrentWorkers must not be negative")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file, starting from
// defaults so unset fields keep their default value.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes c as YAML to path, creating parent directories.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Merge overlays other's non-zero fields onto c (other takes precedence).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	if other.Repo.Path != "" {
		c.Repo.Path = other.Repo.Path
	}
	c.Queen = c.Queen.Merge(other.Queen)
	if other.Gate.RequireCleanBaseline {
		c.Gate.RequireCleanBaseline = true
	}
}
