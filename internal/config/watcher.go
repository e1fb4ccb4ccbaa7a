package config

import (
	"context"
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/platformbuilds/opsagents/pkg/logger"
)

// Watcher reloads the service configuration when its file changes and
// notifies registered callbacks with the fresh value.
type Watcher struct {
	configPath string
	logger     logger.Logger

	mu        sync.Mutex
	callbacks []func(*Config)
}

// NewWatcher builds a watcher for the given config file path.
func NewWatcher(configPath string, log logger.Logger) *Watcher {
	return &Watcher{configPath: configPath, logger: log}
}

// Register adds a callback invoked after each successful reload.
func (w *Watcher) Register(cb func(*Config)) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, cb)
	w.mu.Unlock()
}

// Start watches the config file until the context is cancelled.
// Reload failures are logged and the previous configuration stays in
// effect.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.configPath); err != nil {
		return fmt.Errorf("failed to watch config file: %w", err)
	}

	w.logger.Info("Configuration watcher started", "path", w.configPath)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Write != fsnotify.Write {
				continue
			}
			w.logger.Info("Configuration file changed, reloading", "file", event.Name)

			cfg, err := Load()
			if err != nil {
				w.logger.Error("Failed to reload configuration", "error", err)
				continue
			}
			w.notify(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Configuration watcher error", "error", err)

		case <-ctx.Done():
			w.logger.Info("Configuration watcher stopping")
			return nil
		}
	}
}

func (w *Watcher) notify(cfg *Config) {
	w.mu.Lock()
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	for _, cb := range callbacks {
		cb(cfg)
	}
}
