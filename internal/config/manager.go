package config

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ChangeCallback receives the previous and the new configuration.
type ChangeCallback func(oldConfig, newConfig *Config)

// Manager owns the live configuration and notifies listeners when the
// config file changes on disk.
type Manager struct {
	mu        sync.RWMutex
	path      string
	v         *viper.Viper
	current   *Config
	callbacks []ChangeCallback
}

// NewManager loads the configuration at path.
func NewManager(path string) (*Manager, error) {
	v := newViper(path)
	if err := readConfig(v, path); err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	return &Manager{path: path, v: v, current: cfg}, nil
}

// NewManagerFromConfig wraps an already loaded configuration.
func NewManagerFromConfig(cfg *Config) *Manager {
	return &Manager{current: cfg}
}

// GetConfig returns the current configuration. Callers must not modify it.
func (m *Manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// OnConfigChange registers a callback run after every successful reload.
func (m *Manager) OnConfigChange(fn ChangeCallback) {
	m.mu.Lock()
	m.callbacks = append(m.callbacks, fn)
	m.mu.Unlock()
}

// Watch starts watching the config file until ctx is done.
func (m *Manager) Watch(ctx context.Context) {
	if m.v == nil || m.v.ConfigFileUsed() == "" {
		slog.InfoContext(ctx, "No config file in use, live reload disabled")
		return
	}

	m.v.OnConfigChange(func(e fsnotify.Event) {
		if ctx.Err() != nil {
			return
		}
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		slog.InfoContext(ctx, "Config file changed", "file", e.Name)
		if err := m.Reload(); err != nil {
			slog.ErrorContext(ctx, "Failed to reload config, keeping previous", "err", err)
		}
	})
	m.v.WatchConfig()
}

// Reload re-reads the config file and notifies listeners. An invalid file
// leaves the current configuration in place.
func (m *Manager) Reload() error {
	if m.v == nil {
		return nil
	}
	if err := m.v.ReadInConfig(); err != nil {
		return err
	}
	cfg, err := decode(m.v)
	if err != nil {
		return err
	}
	m.Update(cfg)
	return nil
}

// Update swaps in cfg and runs the change callbacks.
func (m *Manager) Update(cfg *Config) {
	m.mu.Lock()
	old := m.current
	m.current = cfg
	callbacks := append([]ChangeCallback(nil), m.callbacks...)
	m.mu.Unlock()

	for _, fn := range callbacks {
		fn(old, cfg)
	}
}
