package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"log/slog"
)

func writeConfig(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "marionette.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestManager_DefaultsWhenFileMissing(t *testing.T) {
	manager := NewManager(filepath.Join(t.TempDir(), "missing.yaml"), slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := manager.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg := manager.Get()
	if cfg.Engine.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.Engine.MaxAttempts)
	}
	if cfg.History.Capacity != 50 {
		t.Errorf("History.Capacity = %d, want 50", cfg.History.Capacity)
	}
}

func TestManager_LoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
engine:
  max_attempts: 5
  delays: ["100ms", "2s"]
history:
  drift_tolerance: 0.1
`)
	manager := NewManager(path, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := manager.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg := manager.Get()
	if cfg.Engine.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.Engine.MaxAttempts)
	}
	if cfg.History.DriftTolerance != 0.1 {
		t.Errorf("DriftTolerance = %v, want 0.1", cfg.History.DriftTolerance)
	}
	// Untouched sections keep defaults.
	if cfg.Visual.DefaultSensitivity != 0.05 {
		t.Errorf("Visual.DefaultSensitivity = %v, want default 0.05", cfg.Visual.DefaultSensitivity)
	}

	policy, err := cfg.RetryPolicy()
	if err != nil {
		t.Fatalf("RetryPolicy() error = %v", err)
	}
	if delay, ok := policy.DelayFor(2); !ok || delay != 100*time.Millisecond {
		t.Errorf("DelayFor(2) = %v/%v, want 100ms", delay, ok)
	}
	if delay, _ := policy.DelayFor(9); delay != 2*time.Second {
		t.Errorf("DelayFor(9) = %v, want clamped 2s", delay)
	}
}

func TestManager_LoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{"zero attempts", "engine:\n  max_attempts: 0\n"},
		{"bad delay", "engine:\n  delays: [\"soon\"]\n"},
		{"window too small", "history:\n  drift_window: 1\n"},
		{"sensitivity out of range", "visual:\n  default_sensitivity: 1.5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.contents)
			manager := NewManager(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
			if err := manager.Load(); err == nil {
				t.Error("Load() accepted invalid config")
			}
		})
	}
}

func TestManager_EnvironmentOverrides(t *testing.T) {
	t.Setenv("MARIONETTE_MAX_ATTEMPTS", "7")
	t.Setenv("MARIONETTE_DRIFT_TOLERANCE", "0.2")

	manager := NewManager(filepath.Join(t.TempDir(), "missing.yaml"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := manager.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg := manager.Get()
	if cfg.Engine.MaxAttempts != 7 {
		t.Errorf("MaxAttempts = %d, want 7", cfg.Engine.MaxAttempts)
	}
	if cfg.History.DriftTolerance != 0.2 {
		t.Errorf("DriftTolerance = %v, want 0.2", cfg.History.DriftTolerance)
	}
}

func TestManager_OnChangeNotified(t *testing.T) {
	manager := NewManager(filepath.Join(t.TempDir(), "missing.yaml"), slog.New(slog.NewTextHandler(io.Discard, nil)))

	var notified *Config
	manager.OnChange(func(cfg *Config) { notified = cfg })

	if err := manager.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if notified == nil {
		t.Fatal("OnChange callback not invoked")
	}
	if notified != manager.Get() {
		t.Error("callback received a different config than Get()")
	}
}

func TestConfig_HistoryOptionsRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.History.Capacity = 10
	cfg.History.DriftWindow = 4
	cfg.History.DriftTolerance = 0.2

	opts := cfg.HistoryOptions()
	if opts.Capacity != 10 || opts.DriftWindow != 4 || opts.DriftTolerance != 0.2 {
		t.Errorf("HistoryOptions = %+v, want {10 4 0.2}", opts)
	}
}
