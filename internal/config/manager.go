package config

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of fsnotify events editors and
// configuration management tools produce per save.
const reloadDebounce = 500 * time.Millisecond

// Manager holds the live configuration behind an atomic pointer and swaps
// it on file changes. A reload that fails validation keeps the current
// configuration.
type Manager struct {
	current atomic.Pointer[Config]
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	mu        sync.Mutex
	listeners []func(*Config)
}

// NewManager loads path and returns a manager serving that configuration.
// Watching starts separately via Watch.
func NewManager(path string, logger *slog.Logger) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{path: path, logger: logger}
	m.current.Store(cfg)
	return m, nil
}

// Get returns the current configuration. Safe for concurrent use; callers
// must treat the returned value as read-only.
func (m *Manager) Get() *Config {
	return m.current.Load()
}

// OnChange registers fn to run after every successful reload.
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Watch reloads the configuration when the file changes, until ctx is
// done. Rename and remove events re-arm the watch because most editors
// replace the file rather than writing in place.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	m.watcher = watcher

	if err := watcher.Add(m.path); err != nil {
		_ = watcher.Close()
		return err
	}

	go m.watchLoop(ctx)
	return nil
}

func (m *Manager) watchLoop(ctx context.Context) {
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			_ = m.watcher.Close()
			return

		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Rename|fsnotify.Remove) != 0 {
				// The path may briefly not exist mid-replace.
				_ = m.watcher.Remove(m.path)
				if err := m.watcher.Add(m.path); err != nil {
					m.logger.Warn("config watch re-arm failed", "path", m.path, "error", err)
				}
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, m.Reload)
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("config watcher error", "error", err)
		}
	}
}

// Reload re-reads the file and swaps the configuration in. Invalid content
// is logged and the previous configuration stays live.
func (m *Manager) Reload() {
	cfg, err := Load(m.path)
	if err != nil {
		m.logger.Error("config reload failed, keeping current configuration", "error", err)
		return
	}

	m.current.Store(cfg)
	m.logger.Info("configuration reloaded", "path", m.path)

	m.mu.Lock()
	listeners := make([]func(*Config), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
}

// Close stops watching. The last loaded configuration stays available.
func (m *Manager) Close() error {
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}
