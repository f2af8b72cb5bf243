// Package watcher turns vault file-system activity into debounced change
// notifications.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/notegraph/internal/storage"
)

// DefaultDebounce is the quiet period used when none is configured.
const DefaultDebounce = 300 * time.Millisecond

// ChangeFunc receives the vault-relative paths touched since the last call.
// Paths of removed directories are included as they were.
type ChangeFunc func(ctx context.Context, paths []string)

// Watcher watches a vault directory tree.
type Watcher struct {
	root     string
	debounce time.Duration
	logger   *slog.Logger
	onChange ChangeFunc
}

// New creates a Watcher. A non-positive debounce means DefaultDebounce.
func New(root string, debounce time.Duration, logger *slog.Logger, onChange ChangeFunc) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{root: root, debounce: debounce, logger: logger, onChange: onChange}
}

// Run watches until ctx is cancelled. Directories created at runtime are
// added to the watch list. onChange runs on the Run goroutine, so bursts
// that arrive while it is busy are folded into the next call.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := addDirsRecursive(fw, w.root); err != nil {
		return err
	}
	w.logger.Info("watcher: started", slog.String("root", w.root))

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
		pending = make(map[string]struct{})
	)
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
			timerCh = timer.C
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(w.debounce)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			w.logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			pending = make(map[string]struct{})
			w.logger.Debug("watcher: vault changed", slog.Int("paths", len(paths)))
			if w.onChange != nil {
				w.onChange(ctx, paths)
			}

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			rel, ok := w.relevant(fw, ev)
			if !ok {
				continue
			}
			pending[rel] = struct{}{}
			schedule()

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// relevant filters events down to Markdown files and directory churn.
func (w *Watcher) relevant(fw *fsnotify.Watcher, ev fsnotify.Event) (string, bool) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if storage.IsHidden(filepath.Base(ev.Name)) {
		return "", false
	}

	if ev.Has(fsnotify.Create) {
		if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
			if addErr := addDirsRecursive(fw, ev.Name); addErr != nil {
				w.logger.Warn("watcher: add new dir failed",
					slog.String("path", rel), slog.String("error", addErr.Error()))
			} else {
				w.logger.Debug("watcher: watching new dir", slog.String("path", rel))
			}
			return rel, true
		}
	}
	if storage.IsMarkdown(ev.Name) {
		return rel, ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
	}
	// A vanished directory may have held notes.
	return rel, ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the watcher.
func addDirsRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && storage.IsHidden(d.Name()) {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}
