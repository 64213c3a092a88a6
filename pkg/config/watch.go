package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/posbridge/posbridge/pkg/telemetry"
)

// Watcher reports edits to the configuration file.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *telemetry.Logger
}

// NewWatcher creates a watcher for the file at path.
func NewWatcher(path string, logger *telemetry.Logger) *Watcher {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	return &Watcher{path: path, debounce: 500 * time.Millisecond, logger: logger}
}

// Watch calls onChange with the reloaded config after each edit, until ctx is
// done. An edit that does not load is logged and skipped. The parent
// directory is watched so that editors that replace the file are seen.
func (w *Watcher) Watch(ctx context.Context, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	abs, err := filepath.Abs(w.path)
	if err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to resolve %s: %w", w.path, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	go w.processEvents(ctx, watcher, abs, onChange)

	w.logger.WithField("path", abs).Info("Watching config file")
	return nil
}

func (w *Watcher) processEvents(ctx context.Context, watcher *fsnotify.Watcher, abs string, onChange func(*Config)) {
	defer watcher.Close()

	var reloadTimer *time.Timer
	defer func() {
		if reloadTimer != nil {
			reloadTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(w.debounce, func() {
				if ctx.Err() != nil {
					return
				}
				cfg, err := Load(abs)
				if err != nil {
					w.logger.WithError(err).Error("Failed to reload config")
					return
				}
				w.logger.WithField("path", abs).Info("Config reloaded")
				onChange(cfg)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("Config watcher error")
		}
	}
}
