// Package config loads YAML run configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/market-abm/internal/engine"
	"github.com/talgya/market-abm/internal/registry"
)

// Component names a plugin kind and its parameter block.
type Component struct {
	Kind   string          `yaml:"kind" json:"kind"`
	Params registry.Params `yaml:"params" json:"params"`
}

// Group spawns Count agents of one kind with consecutive IDs from FirstID.
// FirstID 0 continues after the previous group.
type Group struct {
	Kind    string          `yaml:"kind" json:"kind"`
	Count   int             `yaml:"count" json:"count"`
	FirstID uint64          `yaml:"first_id" json:"first_id,omitempty"`
	Params  registry.Params `yaml:"params" json:"params"`
}

// Config is one run file.
type Config struct {
	Name          string        `yaml:"name" json:"name"`
	Seed          int64         `yaml:"seed" json:"seed"` // 0 = random, logged at startup
	Steps         int           `yaml:"steps" json:"steps"`
	Parallel      bool          `yaml:"parallel" json:"parallel"`
	Workers       int           `yaml:"workers" json:"workers"`
	TaskTimeout   time.Duration `yaml:"task_timeout" json:"task_timeout"`
	FailurePolicy string        `yaml:"failure_policy" json:"failure_policy"`
	PartialExport bool          `yaml:"partial_export" json:"partial_export"`

	Environment Component `yaml:"environment" json:"environment"`
	Investors   []Group   `yaml:"investors" json:"investors"`

	Output struct {
		Dir    string `yaml:"dir" json:"dir"`
		Tag    string `yaml:"tag" json:"tag"`
		SQLite string `yaml:"sqlite" json:"sqlite,omitempty"`
	} `yaml:"output" json:"output"`

	API struct {
		Addr string `yaml:"addr" json:"addr,omitempty"`
	} `yaml:"api" json:"api"`

	Logging struct {
		Level string `yaml:"level" json:"level"`
	} `yaml:"logging" json:"logging"`
}

// Default returns a configuration with every optional field filled.
func Default() Config {
	var c Config
	c.Steps = 252
	c.Parallel = true
	c.FailurePolicy = "abort"
	c.Output.Dir = "./outputs"
	c.Logging.Level = "info"
	return c
}

// Load reads, parses and validates a run file. Environment variables
// override the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a run file onto Default.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	var errs []error
	if c.Steps < 0 {
		errs = append(errs, fmt.Errorf("steps must be non-negative, got %d", c.Steps))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must be non-negative, got %d", c.Workers))
	}
	if c.TaskTimeout < 0 {
		errs = append(errs, fmt.Errorf("task_timeout must be non-negative, got %s", c.TaskTimeout))
	}
	if _, err := engine.ParseFailurePolicy(c.FailurePolicy); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Environment.Kind) == "" {
		errs = append(errs, errors.New("environment kind is required"))
	}
	for i, g := range c.Investors {
		if strings.TrimSpace(g.Kind) == "" {
			errs = append(errs, fmt.Errorf("investors[%d]: kind is required", i))
		}
		if g.Count < 0 {
			errs = append(errs, fmt.Errorf("investors[%d]: count must be non-negative, got %d", i, g.Count))
		}
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// overrideWithEnv applies MARKETSIM_* variables. Environment variables take
// precedence over the file.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("MARKETSIM_OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if v := os.Getenv("MARKETSIM_SQLITE"); v != "" {
		cfg.Output.SQLite = v
	}
	if v := os.Getenv("MARKETSIM_API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv("MARKETSIM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Engine converts the run settings into a driver configuration.
func (c *Config) Engine(resultsPath string) engine.Config {
	policy, _ := engine.ParseFailurePolicy(c.FailurePolicy)
	return engine.Config{
		Cycles:        c.Steps,
		Parallel:      c.Parallel,
		Workers:       c.Workers,
		TaskTimeout:   c.TaskTimeout,
		FailurePolicy: policy,
		ResultsPath:   resultsPath,
		PartialExport: c.PartialExport,
	}
}

// Tag returns the output tag, falling back to the upper-cased run name.
func (c *Config) Tag() string {
	if c.Output.Tag != "" {
		return c.Output.Tag
	}
	if c.Name != "" {
		return strings.ToUpper(c.Name)
	}
	return "RUN"
}

// LogLevel returns the configured slog level.
func (c *Config) LogLevel() slog.Level {
	lvl, _ := parseLevel(c.Logging.Level)
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
