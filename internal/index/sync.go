package index

import (
	"context"
	"log/slog"

	"github.com/starford/nbsync/internal/storage"
)

// Entry is a page converted for the index.
type Entry struct {
	Page    PageRow
	Figures []FigureRow
	// Dependencies maps the notebook URLs the page's directives read to the
	// checksum of each notebook file at build time.
	Dependencies map[string]string
}

// Builder converts the raw Markdown of a page into an index entry.
type Builder interface {
	Build(ctx context.Context, path string, data []byte) (*Entry, error)
}

// DependencyChecker is implemented by builders that can report the current
// checksum of a notebook, letting Sync rebuild pages whose notebooks changed.
type DependencyChecker interface {
	NotebookChecksum(url string) (string, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(ctx context.Context, path string, data []byte) (*Entry, error)

// Build calls f.
func (f BuilderFunc) Build(ctx context.Context, path string, data []byte) (*Entry, error) {
	return f(ctx, path, data)
}

// Sync walks the docs directory and brings the index up to date:
//   - new/changed pages are converted and upserted
//   - pages whose notebooks changed are converted again when b is a DependencyChecker
//   - pages removed from disk are deleted from the index
func Sync(ctx context.Context, db PageIndex, store storage.Provider, b Builder, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}
	deps, err := db.AllDependencies()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum && !dependenciesChanged(b, deps[m.Path]) {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := indexFile(ctx, db, b, m.Path, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeletePage(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

func dependenciesChanged(b Builder, deps map[string]string) bool {
	dc, ok := b.(DependencyChecker)
	if !ok {
		return false
	}
	for url, stored := range deps {
		// An unreadable notebook counts as empty.
		current, err := dc.NotebookChecksum(url)
		if err != nil {
			current = ""
		}
		if current != stored {
			return true
		}
	}
	return false
}

// indexFile converts data and upserts it into the DB.
func indexFile(ctx context.Context, db PageIndex, b Builder, path string, data []byte) error {
	e, err := b.Build(ctx, path, data)
	if err != nil {
		return err
	}
	e.Page.Path = path
	return db.UpsertPage(e.Page, e.Figures, e.Dependencies)
}
