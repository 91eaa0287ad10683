package routes

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/drblury/flowgate/internal/runtime/logging"
)

// settle absorbs the burst of events editors emit for a single save.
const settle = 100 * time.Millisecond

// Watch calls reload whenever the file at path changes, until ctx is done.
// The parent directory is watched so atomic rename-on-save is picked up.
// Reload failures are logged and the previous routes stay in effect.
func Watch(ctx context.Context, path string, reload func() error, logger logging.ServiceLogger) error {
	logger = logging.WithComponent(logger, "routes")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", target, err)
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(settle)
		case <-pending:
			pending = nil
			if err := reload(); err != nil {
				logger.Error("Route reload failed", err, logging.LogFields{"path": target})
				continue
			}
			logger.Info("Routes reloaded", logging.LogFields{"path": target})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("Route watcher error", err, nil)
		}
	}
}
