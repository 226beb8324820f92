package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Manager holds the active configuration and reloads it when the backing
// file changes. Get is safe for concurrent use; reloads swap the whole
// config atomically.
type Manager struct {
	path      string
	configPtr atomic.Pointer[Config]
	watchers  []func(*Config)
	watcherMu sync.RWMutex
	logger    *slog.Logger
}

// NewManager creates a manager bound to a config file path. The path may
// point at a file that does not exist yet; defaults apply until it does.
func NewManager(path string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{path: path, logger: logger}
	m.configPtr.Store(DefaultConfig())
	return m
}

// Get returns the active configuration.
func (m *Manager) Get() *Config {
	return m.configPtr.Load()
}

// Load reads defaults, the file, and environment overrides, then swaps the
// active configuration and notifies change watchers.
func (m *Manager) Load() error {
	cfg := DefaultConfig()

	if err := loadYAMLFile(m.path, cfg); err != nil {
		return fmt.Errorf("config file %s: %w", m.path, err)
	}
	applyEnvironment(cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config file %s: %w", m.path, err)
	}

	m.configPtr.Store(cfg)
	m.notifyWatchers(cfg)
	return nil
}

// OnChange registers a callback invoked after every successful reload.
func (m *Manager) OnChange(fn func(*Config)) {
	m.watcherMu.Lock()
	m.watchers = append(m.watchers, fn)
	m.watcherMu.Unlock()
}

func (m *Manager) notifyWatchers(cfg *Config) {
	m.watcherMu.RLock()
	watchers := m.watchers
	m.watcherMu.RUnlock()

	for _, fn := range watchers {
		fn(cfg)
	}
}

// Watch reloads the configuration whenever the file is written, until the
// context is cancelled. A reload failure keeps the previous config active.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory, not the file: editors replace files on save and
	// a watch on the old inode would go stale.
	dir := filepath.Dir(m.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != m.path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := m.Load(); err != nil {
					m.logger.Warn("config reload failed, keeping previous config",
						"path", m.path,
						"error", err,
					)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.logger.Warn("config watcher error", "error", err)
			}
		}
	}()
	return nil
}
