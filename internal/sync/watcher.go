package sync

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultWatchDebounce is how long the watcher waits after the last
// filesystem event before re-running the push, batching editor save
// bursts into one sync.
const defaultWatchDebounce = 2 * time.Second

// Watcher monitors the local tree and re-runs the push direction when
// files change. Remote-side changes are not watched; pull still only
// happens on explicit runs.
type Watcher struct {
	dir      string
	syncFn   func(context.Context) error
	logger   *slog.Logger
	debounce time.Duration

	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher over dir that invokes syncFn after
// changes settle.
func NewWatcher(dir string, syncFn func(context.Context) error, logger *slog.Logger) *Watcher {
	return &Watcher{
		dir:      dir,
		syncFn:   syncFn,
		logger:   logger,
		debounce: defaultWatchDebounce,
	}
}

// Watch blocks until the context is cancelled, watching the tree
// recursively. New subdirectories are added to the watch as they
// appear.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher
	defer watcher.Close()

	if err := w.addRecursive(w.dir); err != nil {
		return err
	}

	w.logger.Info("file watcher started", slog.String("dir", w.dir))

	// The timer is parked until the first relevant event.
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	pending := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if w.shouldIgnore(event.Name) {
				continue
			}

			// Watch newly created directories so changes inside them
			// are seen without a restart.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						w.logger.Warn("watching new directory failed",
							slog.String("path", event.Name),
							slog.String("error", err.Error()),
						)
					}
				}
			}

			pending = true
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", slog.String("error", err.Error()))

		case <-timer.C:
			if !pending {
				continue
			}
			pending = false

			w.logger.Info("local changes settled, pushing")
			if err := w.syncFn(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				w.logger.Warn("triggered sync failed", slog.String("error", err.Error()))
			}
		}
	}
}

// addRecursive registers dir and all its subdirectories with the
// watcher, skipping hidden and junk directories.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A directory vanishing mid-walk is not fatal to the watch.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && SkipLocalName(d.Name()) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// shouldIgnore filters events on hidden or junk path components.
func (w *Watcher) shouldIgnore(path string) bool {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		return true
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part != "." && SkipLocalName(part) {
			return true
		}
	}
	return false
}
