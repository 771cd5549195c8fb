package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a pricing file into a table whenever the file changes.
// The parent directory is watched so that editors that replace the file by
// rename are picked up.
type Watcher struct {
	path     string
	table    *Table
	base     map[string]Price
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	reloads int
}

// NewWatcher creates a watcher for path. Entries in base are always present
// underneath the file's models.
func NewWatcher(path string, table *Table, base map[string]Price) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		table:    table,
		base:     base,
		debounce: 100 * time.Millisecond,
		logger:   slog.Default().With("component", "pricing.watcher"),
	}
}

// Reload loads the file and applies it to the table. On error the table is
// left unchanged.
func (w *Watcher) Reload() error {
	f, err := LoadFile(w.path)
	if err != nil {
		return err
	}
	if err := f.Apply(w.table, w.base); err != nil {
		return err
	}

	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()

	w.logger.Info("pricing reloaded", "path", w.path, "models", len(f.Models))
	return nil
}

// Reloads returns how many successful reloads have happened.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Watch blocks until ctx is cancelled, reloading the table on file changes.
func (w *Watcher) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %q: %w", filepath.Dir(w.path), err)
	}

	w.logger.Info("pricing watcher started", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != w.path || event.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				w.logger.Warn("pricing file removed, keeping current prices", "path", w.path)
				continue
			}
			w.schedule()

		case err, ok := <-fsw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("pricing watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if err := w.Reload(); err != nil {
			w.logger.Error("pricing reload failed", "path", w.path, "error", err)
		}
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}
