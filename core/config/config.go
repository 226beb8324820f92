// Package config loads and watches the marionette configuration file.
// Defaults apply when no file exists; environment variables override both.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mindmarionette/marionette/core/healing"
)

// Config is the full tunable surface of the toolkit.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	History   HistoryConfig   `yaml:"history"`
	Visual    VisualConfig    `yaml:"visual"`
	Reporting ReportingConfig `yaml:"reporting"`
}

// EngineConfig tunes the retry loop.
type EngineConfig struct {
	MaxAttempts int `yaml:"max_attempts"`

	// Delays are duration strings ("500ms", "2s"); Delays[0] precedes the
	// second attempt and the list clamps past its end.
	Delays []string `yaml:"delays"`
}

// HistoryConfig tunes the per-scenario outcome buffer and drift detection.
type HistoryConfig struct {
	Capacity       int     `yaml:"capacity"`
	DriftWindow    int     `yaml:"drift_window"`
	DriftTolerance float64 `yaml:"drift_tolerance"`
}

// VisualConfig tunes visual verification.
type VisualConfig struct {
	StorageDir         string  `yaml:"storage_dir"`
	DefaultSensitivity float64 `yaml:"default_sensitivity"`
	BaselineCacheSize  int     `yaml:"baseline_cache_size"`
}

// ReportingConfig tunes report output and archival.
type ReportingConfig struct {
	ArchivePath string `yaml:"archive_path"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxAttempts: 3,
		},
		History: HistoryConfig{
			Capacity:       50,
			DriftWindow:    3,
			DriftTolerance: 0.05,
		},
		Visual: VisualConfig{
			StorageDir:         "visual_artifacts",
			DefaultSensitivity: 0.05,
			BaselineCacheSize:  128,
		},
		Reporting: ReportingConfig{
			ArchivePath: "marionette_reports.db",
		},
	}
}

// Validate checks cross-field invariants.
func (c *Config) Validate() error {
	if c.Engine.MaxAttempts < 1 {
		return fmt.Errorf("engine.max_attempts: %w", healing.ErrInvalidMaxAttempts)
	}
	for _, raw := range c.Engine.Delays {
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("engine.delays: %w", err)
		}
	}
	if c.History.DriftWindow < 2 {
		return fmt.Errorf("history.drift_window must be >= 2, got %d", c.History.DriftWindow)
	}
	if c.Visual.DefaultSensitivity < 0 || c.Visual.DefaultSensitivity > 1 {
		return fmt.Errorf("visual.default_sensitivity must be in [0,1], got %v", c.Visual.DefaultSensitivity)
	}
	return nil
}

// RetryPolicy converts the engine section into a validated retry policy.
func (c *Config) RetryPolicy() (healing.RetryPolicy, error) {
	delays := make([]time.Duration, 0, len(c.Engine.Delays))
	for _, raw := range c.Engine.Delays {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return healing.RetryPolicy{}, fmt.Errorf("engine.delays: %w", err)
		}
		delays = append(delays, d)
	}
	return healing.NewRetryPolicy(c.Engine.MaxAttempts, delays...)
}

// HistoryOptions converts the history section into action-history tuning.
func (c *Config) HistoryOptions() healing.HistoryOptions {
	return healing.HistoryOptions{
		Capacity:       c.History.Capacity,
		DriftWindow:    c.History.DriftWindow,
		DriftTolerance: c.History.DriftTolerance,
	}
}

// loadYAMLFile merges a YAML file into cfg. A missing file is not an error.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvironment applies MARIONETTE_* overrides on top of file values.
func applyEnvironment(cfg *Config) {
	if v := os.Getenv("MARIONETTE_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxAttempts = n
		}
	}
	if v := os.Getenv("MARIONETTE_DRIFT_TOLERANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.History.DriftTolerance = f
		}
	}
	if v := os.Getenv("MARIONETTE_VISUAL_DIR"); v != "" {
		cfg.Visual.StorageDir = v
	}
	if v := os.Getenv("MARIONETTE_ARCHIVE_PATH"); v != "" {
		cfg.Reporting.ArchivePath = v
	}
}
