package cli

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/vegasq/aggcat/definition"
)

const watchDebounce = 100 * time.Millisecond

// watch re-runs definitions whose files change until ctx is cancelled.
// Directories are watched rather than files so editors that replace files
// on save are still seen.
func (r *runner) watch(ctx context.Context, defs []*definition.Definition) error {
	files := watchedFiles(defs)
	if len(files) == 0 {
		return fmt.Errorf("--watch needs at least one definition file on disk")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	var dirs []string
	for path := range files {
		dir := filepath.Dir(path)
		if slices.Contains(dirs, dir) {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		dirs = append(dirs, dir)
	}
	r.logger.Info("watching for changes", slog.Int("files", len(files)))

	var (
		mu            sync.Mutex
		runMu         sync.Mutex
		pending       = make(map[string]bool)
		debounceTimer *time.Timer
	)
	rerun := func() {
		runMu.Lock()
		defer runMu.Unlock()

		mu.Lock()
		changed := slices.Sorted(maps.Keys(pending))
		clear(pending)
		mu.Unlock()

		for _, path := range changed {
			def, err := definition.Load(path)
			if err != nil {
				r.logger.Error("reload failed", slog.String("path", path), slog.String("error", err.Error()))
				continue
			}
			r.logger.Info("change detected", slog.String("query", def.Name))
			if err := r.runAll(ctx, []*definition.Definition{def}); err != nil {
				r.logger.Error("run failed", slog.String("query", def.Name), slog.String("error", err.Error()))
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			mu.Unlock()
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			path, ok := files[abs]
			if !ok {
				continue
			}

			mu.Lock()
			pending[path] = true
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(watchDebounce, rerun)
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

// watchedFiles maps the absolute path of every definition that was read
// from disk to the path it was loaded with.
func watchedFiles(defs []*definition.Definition) map[string]string {
	files := make(map[string]string)
	for _, def := range defs {
		if def.Path == "" {
			continue
		}
		if _, err := os.Stat(def.Path); err != nil {
			continue
		}
		abs, err := filepath.Abs(def.Path)
		if err != nil {
			continue
		}
		files[abs] = def.Path
	}
	return files
}
