// Package pageservice converts documentation pages against their notebooks
// and keeps the results in the page index.
package pageservice

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/starford/nbsync/internal/apperr"
	"github.com/starford/nbsync/internal/checksum"
	"github.com/starford/nbsync/internal/index"
	"github.com/starford/nbsync/internal/markdown"
	"github.com/starford/nbsync/internal/models"
	"github.com/starford/nbsync/internal/notebook"
	"github.com/starford/nbsync/internal/storage"
	"github.com/starford/nbsync/internal/synchronizer"
)

// Service coordinates the docs storage, the synchronizers and the index.
//
// Every page owns a Synchronizer so that its own notebook and its notebook
// cache survive between builds. Conversions are serialized.
type Service struct {
	mu        sync.Mutex
	docs      storage.Provider
	notebooks NotebookStore
	executor  notebook.Executor
	db        index.PageIndex
	logger    *slog.Logger
	syncs     map[string]*synchronizer.Synchronizer
}

// NotebookStore reads notebooks and reports the checksum of their files.
type NotebookStore interface {
	synchronizer.Store
	Checksum(url string) (string, error)
}

// NewService creates a new page service.
func NewService(docs storage.Provider, notebooks NotebookStore, executor notebook.Executor, db index.PageIndex, logger *slog.Logger) *Service {
	return &Service{
		docs:      docs,
		notebooks: notebooks,
		executor:  executor,
		db:        db,
		logger:    logger,
		syncs:     make(map[string]*synchronizer.Synchronizer),
	}
}

var (
	_ index.Builder           = (*Service)(nil)
	_ index.DependencyChecker = (*Service)(nil)
	_ NotebookStore           = (*storage.Notebooks)(nil)
)

// Build converts the page at path. It implements index.Builder.
func (s *Service) Build(ctx context.Context, path string, data []byte) (*index.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sy, ok := s.syncs[path]
	if !ok {
		sy = synchronizer.New(s.notebooks, s.executor, synchronizer.WithLogger(s.logger.With(slog.String("page", path))))
		s.syncs[path] = sy
	}

	md, figures, err := sy.ConvertString(ctx, string(data))
	if err != nil {
		// A notebook whose execution failed stays flagged; start over next time.
		delete(s.syncs, path)
		return nil, fmt.Errorf("pageservice: convert %s: %w", path, err)
	}

	e := &index.Entry{
		Page: index.PageRow{
			Path:      path,
			Checksum:  checksum.Sum(data),
			Markdown:  md,
			UpdatedAt: time.Now(),
		},
	}
	for _, f := range figures {
		e.Figures = append(e.Figures, index.FigureRow{Src: f.Src, Page: path, Mime: f.Mime, Content: f.Content})
	}
	e.Dependencies = make(map[string]string)
	for _, url := range sy.Resolved() {
		if url == markdown.SelfURL {
			continue
		}
		sum, err := s.notebooks.Checksum(url)
		if err != nil {
			s.logger.Debug("build: notebook checksum", slog.String("url", url), slog.String("error", err.Error()))
		}
		e.Dependencies[url] = sum
	}
	return e, nil
}

// NotebookChecksum implements index.DependencyChecker.
func (s *Service) NotebookChecksum(url string) (string, error) {
	return s.notebooks.Checksum(url)
}

// IndexFile converts data and upserts it into the index.
// Exported so that the CLI and the handlers can reuse it.
func (s *Service) IndexFile(ctx context.Context, path string, data []byte) error {
	e, err := s.Build(ctx, path, data)
	if err != nil {
		return err
	}
	return s.db.UpsertPage(e.Page, e.Figures, e.Dependencies)
}

// Sync brings the index up to date with the docs directory.
func (s *Service) Sync(ctx context.Context) error {
	return index.Sync(ctx, s.db, s.docs, s, s.logger)
}

// Rebuild converts the page at path again, executing stale notebooks.
func (s *Service) Rebuild(ctx context.Context, path string) (*models.Page, error) {
	data, err := s.docs.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if err := s.IndexFile(ctx, path, data); err != nil {
		return nil, err
	}
	return s.db.GetPage(path)
}

// GetPage returns the converted page, building it on first request.
func (s *Service) GetPage(ctx context.Context, path string) (*models.Page, error) {
	p, err := s.db.GetPage(path)
	if errors.Is(err, apperr.ErrNotFound) {
		return s.Rebuild(ctx, path)
	}
	return p, err
}

// ListPages returns every indexed page.
func (s *Service) ListPages(_ context.Context) ([]models.PageMetadata, error) {
	pages, err := s.db.ListPages()
	if err != nil {
		return nil, err
	}
	return nonNilSlice(pages), nil
}

// GetFigure returns a stored figure by file name.
func (s *Service) GetFigure(_ context.Context, src string) (*index.FigureRow, error) {
	return s.db.GetFigure(src)
}

// Search delegates full-text search over converted pages to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	res, err := s.db.Search(query, limit)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(res), nil
}

// Forget drops the synchronizer of a page removed from disk.
func (s *Service) Forget(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.syncs, path)
}

// exportManifest lists, one per line, the files the last export wrote.
const exportManifest = ".nbsync-export"

// Export writes every converted page to out, with its figures next to it.
// Files written by the previous export and not by this one are removed.
// It returns the number of pages written.
func (s *Service) Export(ctx context.Context, out storage.Provider) (int, error) {
	pages, err := s.db.ListPages()
	if err != nil {
		return 0, err
	}
	var written []string
	for _, meta := range pages {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		p, err := s.db.GetPage(meta.Path)
		if err != nil {
			return 0, err
		}
		if err := out.Write(p.Path, []byte(p.Markdown)); err != nil {
			return 0, err
		}
		written = append(written, p.Path)
		for _, ref := range p.Figures {
			f, err := s.db.GetFigure(ref.Src)
			if err != nil {
				return 0, err
			}
			dst := path.Join(path.Dir(p.Path), f.Src)
			if err := out.Write(dst, f.Content); err != nil {
				return 0, err
			}
			written = append(written, dst)
		}
		s.logger.Debug("export: wrote page", slog.String("path", p.Path), slog.Int("figures", len(p.Figures)))
	}
	if err := s.pruneExport(out, written); err != nil {
		return 0, err
	}
	return len(pages), nil
}

// pruneExport deletes the files of the previous export missing from written,
// then records written as the new manifest.
func (s *Service) pruneExport(out storage.Provider, written []string) error {
	prev, err := out.Read(exportManifest)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	keep := make(map[string]struct{}, len(written))
	for _, p := range written {
		keep[p] = struct{}{}
	}
	for _, p := range strings.Split(string(prev), "\n") {
		if _, ok := keep[p]; ok || p == "" {
			continue
		}
		if err := out.Delete(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		s.logger.Debug("export: removed stale", slog.String("path", p))
	}
	return out.Write(exportManifest, []byte(strings.Join(written, "\n")+"\n"))
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
