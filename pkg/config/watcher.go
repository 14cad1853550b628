package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// RulesWatcher watches the rules file for changes and triggers reloads.
// Write events are debounced to prevent reload storms from editors that
// write files in several operations.
type RulesWatcher struct {
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	path     string
	debounce time.Duration

	mu      sync.Mutex
	running bool
}

// NewRulesWatcher creates a watcher over the given rules file path.
func NewRulesWatcher(path string, logger *slog.Logger) (*RulesWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &RulesWatcher{
		watcher:  w,
		logger:   logger,
		path:     path,
		debounce: 100 * time.Millisecond,
	}, nil
}

// Watch blocks until the context is cancelled, invoking onReload after each
// debounced change to the watched file. The parent directory is watched so
// atomic rename-over-save (vim, kubernetes configmap updates) is picked up.
func (rw *RulesWatcher) Watch(ctx context.Context, onReload func() error) error {
	rw.mu.Lock()
	if rw.running {
		rw.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	rw.running = true
	rw.mu.Unlock()

	defer func() {
		rw.mu.Lock()
		rw.running = false
		rw.mu.Unlock()
	}()

	dir := filepath.Dir(rw.path)
	if err := rw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	rw.logger.Info("rules watcher started",
		"path", rw.path,
		"debounce_ms", rw.debounce.Milliseconds(),
	)

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			rw.logger.Info("rules watcher stopped")
			return rw.watcher.Close()

		case event, ok := <-rw.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(rw.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(rw.debounce)
				timerCh = timer.C
			} else {
				timer.Reset(rw.debounce)
			}

		case <-timerCh:
			timer = nil
			timerCh = nil
			if err := onReload(); err != nil {
				rw.logger.Error("rules reload failed, keeping previous rules",
					"path", rw.path,
					"error", err,
				)
				continue
			}
			rw.logger.Info("rules reloaded", "path", rw.path)

		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return nil
			}
			rw.logger.Error("rules watcher error", "error", err)
		}
	}
}
