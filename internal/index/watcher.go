package index

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

	"github.com/starford/nbsync/internal/markdown"
	"github.com/starford/nbsync/internal/storage"
)

// EventCallback is called after a watcher-driven index change.
// kind is one of "created", "updated", "deleted", or "failed" when a
// conversion triggered by the watcher returned an error.
type EventCallback func(kind string, path string)

// Roots are the directories Watch observes.
type Roots struct {
	// Docs holds the Markdown pages.
	Docs string
	// Notebooks are the notebook source directories in search order.
	Notebooks []string
}

// Watch starts an fsnotify watcher on the docs and notebook roots and
// processes file change events until ctx is cancelled. A changed page is
// converted again; a changed notebook converts every page depending on it.
// cb (if non-nil) is called after each successful index mutation.
//
// New directories created at runtime are automatically added to the watch
// list. Rename events trigger a reconciliation pass that removes stale
// index entries whose files no longer exist on disk.
func Watch(ctx context.Context, db PageIndex, store storage.Provider, b Builder, roots Roots, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dirs := append([]string{roots.Docs}, roots.Notebooks...)
	slices.Sort(dirs)
	for _, dir := range slices.Compact(dirs) {
		if err := addDirsRecursive(w, dir); err != nil {
			return err
		}
	}

	logger.Info("watcher: started", slog.String("docs", roots.Docs), slog.Any("notebooks", roots.Notebooks))

	// reconcileTimer is used to debounce rename reconciliation.
	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcileAfterRename(ctx, db, store, b, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					if _, ok := relTo(roots.Docs, absPath); ok {
						indexNewDir(ctx, db, store, b, roots.Docs, absPath, logger, cb)
					}
					continue
				}
			}

			page := ""
			if rel, ok := relTo(roots.Docs, absPath); ok && strings.HasSuffix(rel, ".md") {
				page = rel
				if handlePageEvent(ctx, db, store, b, ev.Op, rel, logger, cb) {
					scheduleReconcile()
				}
			}

			if !markdown.HasSupportedExtension(absPath) {
				continue
			}
			for _, root := range roots.Notebooks {
				url, ok := relTo(root, absPath)
				if !ok {
					continue
				}
				rebuildDependents(ctx, db, store, b, url, page, logger, cb)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// handlePageEvent applies a file event on a page. It reports whether a
// reconciliation pass is needed.
func handlePageEvent(ctx context.Context, db PageIndex, store storage.Provider, b Builder, op fsnotify.Op, rel string, logger *slog.Logger, cb EventCallback) bool {
	switch {
	case op&(fsnotify.Create|fsnotify.Write) != 0:
		data, readErr := store.Read(rel)
		if readErr != nil {
			logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", readErr.Error()))
			return false
		}
		if idxErr := indexFile(ctx, db, b, rel, data); idxErr != nil {
			logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", idxErr.Error()))
			if cb != nil {
				cb("failed", rel)
			}
			return false
		}
		kind := "updated"
		if op&fsnotify.Create != 0 {
			kind = "created"
		}
		logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", kind))
		if cb != nil {
			cb(kind, rel)
		}

	case op&fsnotify.Remove != 0:
		if delErr := db.DeletePage(rel); delErr != nil {
			logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
			return false
		}
		logger.Debug("watcher: deleted", slog.String("path", rel))
		if cb != nil {
			cb("deleted", rel)
		}

	case op&fsnotify.Rename != 0:
		// fsnotify fires Rename on the old path only. The new path arrives
		// as a separate Create event when it stays within a watched dir.
		if delErr := db.DeletePage(rel); delErr != nil {
			logger.Warn("watcher: rename delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
		} else {
			logger.Debug("watcher: rename old deleted", slog.String("path", rel))
			if cb != nil {
				cb("deleted", rel)
			}
		}
		return true
	}
	return false
}

// rebuildDependents converts again every page reading the notebook url,
// except skip, which was just handled as a page.
func rebuildDependents(ctx context.Context, db PageIndex, store storage.Provider, b Builder, url, skip string, logger *slog.Logger, cb EventCallback) {
	pages, err := db.Dependents(url)
	if err != nil {
		logger.Warn("watcher: dependents failed", slog.String("notebook", url), slog.String("error", err.Error()))
		return
	}
	for _, p := range pages {
		if p == skip {
			continue
		}
		data, readErr := store.Read(p)
		if readErr != nil {
			logger.Warn("watcher: read failed", slog.String("path", p), slog.String("error", readErr.Error()))
			continue
		}
		if idxErr := indexFile(ctx, db, b, p, data); idxErr != nil {
			logger.Warn("watcher: index failed", slog.String("path", p), slog.String("error", idxErr.Error()))
			if cb != nil {
				cb("failed", p)
			}
			continue
		}
		logger.Debug("watcher: rebuilt dependent", slog.String("path", p), slog.String("notebook", url))
		if cb != nil {
			cb("updated", p)
		}
	}
}

// reconcileAfterRename does a lightweight sync using batch lookups:
// finds index entries without a corresponding file on disk and removes them,
// and finds on-disk pages that are not indexed and indexes them.
func reconcileAfterRename(ctx context.Context, db PageIndex, store storage.Provider, b Builder, logger *slog.Logger, cb EventCallback) {
	checksums, err := db.AllChecksums()
	if err != nil {
		logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}

	metas, err := store.List("")
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		disk[m.Path] = m.Checksum
	}

	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if delErr := db.DeletePage(p); delErr == nil {
				logger.Debug("reconcile: removed stale", slog.String("path", p))
				if cb != nil {
					cb("deleted", p)
				}
			}
		}
	}

	for p, cs := range disk {
		if checksums[p] == cs {
			continue
		}
		data, readErr := store.Read(p)
		if readErr != nil {
			continue
		}
		if idxErr := indexFile(ctx, db, b, p, data); idxErr == nil {
			logger.Debug("reconcile: indexed new", slog.String("path", p))
			if cb != nil {
				cb("created", p)
			}
		}
	}
}

// indexNewDir indexes any pages found in a newly created directory.
func indexNewDir(ctx context.Context, db PageIndex, store storage.Provider, b Builder, docsRoot, dirPath string, logger *slog.Logger, cb EventCallback) {
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}
		rel, ok := relTo(docsRoot, path)
		if !ok {
			return nil
		}
		data, readErr := store.Read(rel)
		if readErr != nil {
			return nil
		}
		if idxErr := indexFile(ctx, db, b, rel, data); idxErr == nil {
			logger.Debug("watcher: indexed from new dir", slog.String("path", rel))
			if cb != nil {
				cb("created", rel)
			}
		}
		return nil
	})
}

// relTo returns path relative to root in slash form, and false when path
// lies outside root.
func relTo(root, path string) (string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
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
