package importer

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/vigor/internal/storage"
)

// Watch imports batches as they appear in the inbox until ctx is cancelled.
//
// Create and write events on batch files reset a debounce timer; when it
// fires a full Sync runs, so a file written in several chunks is read once
// it is complete. Directories created at runtime are added to the watch
// list, except archive/ and failed/.
func (i *Importer) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := i.store.Root()
	if err := i.addDirs(w, root); err != nil {
		return err
	}
	i.log.Info("importer: watching", slog.String("root", root))

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(i.debounce)
			fire = timer.C
		} else {
			timer.Reset(i.debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			i.log.Info("importer: stopped")
			return nil

		case <-fire:
			rep, err := i.Sync(ctx)
			if err != nil && ctx.Err() == nil {
				i.log.Warn("importer: sync failed", slog.String("error", err.Error()))
			}
			if rep.Imported+rep.Duplicates+rep.Failed > 0 {
				i.log.Debug("importer: sync done",
					slog.Int("imported", rep.Imported),
					slog.Int("duplicates", rep.Duplicates),
					slog.Int("failed", rep.Failed))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if i.skipped(ev.Name) {
						continue
					}
					if addErr := i.addDirs(w, ev.Name); addErr != nil {
						i.log.Warn("importer: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					schedule()
					continue
				}
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !storage.IsBatchFile(ev.Name) {
				continue
			}
			if i.skipped(filepath.Dir(ev.Name)) {
				continue
			}
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			i.log.Error("importer: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// skipped reports whether dir is, or lies under, archive/ or failed/.
func (i *Importer) skipped(dir string) bool {
	rel, err := filepath.Rel(i.store.Root(), dir)
	if err != nil || rel == "." {
		return false
	}
	first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	return slices.Contains([]string{ArchiveDir, FailedDir}, first)
}

// addDirs adds root and its subdirectories, minus the skipped ones, to w.
func (i *Importer) addDirs(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != i.store.Root() && i.skipped(p) {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
