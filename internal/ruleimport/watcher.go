package ruleimport

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits after the last file event before
// re-syncing.
const DefaultDebounce = 200 * time.Millisecond

// SyncCallback is called after a watcher-driven sync that changed rules.
type SyncCallback func(rep Report)

// Watch starts an fsnotify watcher on the rule directory and re-syncs after
// bursts of rule file events until ctx is cancelled. New directories are
// added to the watch list as they appear.
func Watch(ctx context.Context, im *Importer, debounce time.Duration, logger *slog.Logger, cb SyncCallback) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := im.dir.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	logger.Info("ruleimport: watcher started", slog.String("root", root))

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("ruleimport: watcher stopped")
			return nil

		case <-fire:
			rep, err := im.Sync()
			if err != nil {
				logger.Warn("ruleimport: sync failed", slog.String("error", err.Error()))
				continue
			}
			if rep.Changed() && cb != nil {
				cb(rep)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("ruleimport: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					schedule()
					continue
				}
			}
			if !IsRuleFile(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("ruleimport: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
