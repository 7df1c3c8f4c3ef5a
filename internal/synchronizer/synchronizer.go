// Package synchronizer keeps Markdown directives in step with the notebooks
// they reference. A Synchronizer parses a page, applies its directives to the
// notebooks, executes the stale ones and converts every directive into the
// source code or output of its cell.
//
// A Synchronizer owns a notebook cache that lives across passes. It is not
// safe for concurrent use; callers serialize Parse, Execute and Convert.
package synchronizer

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/starford/nbsync/internal/markdown"
	"github.com/starford/nbsync/internal/notebook"
)

// SelfDisplayPath is logged in place of a path for the page's own notebook.
const SelfDisplayPath = "<markdown>"

// Store reads notebooks by URL.
type Store interface {
	Read(url string) (*notebook.Document, error)
	FindPath(url string) (string, error)
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synchronizer) {
		s.logger = logger
	}
}

// Synchronizer converts Markdown pages against a cache of notebooks.
type Synchronizer struct {
	store     Store
	executor  notebook.Executor
	logger    *slog.Logger
	notebooks map[string]*notebook.Notebook
	// resolved holds the URLs read successfully by the last completed pass.
	// Only those are converted.
	resolved map[string]struct{}
}

// New creates a Synchronizer reading notebooks from store and executing them
// with executor.
func New(store Store, executor notebook.Executor, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		store:     store,
		executor:  executor,
		logger:    slog.Default(),
		notebooks: make(map[string]*notebook.Notebook),
		resolved:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Notebook returns the cached notebook for url.
func (s *Synchronizer) Notebook(url string) (*notebook.Notebook, bool) {
	nb, ok := s.notebooks[url]
	return nb, ok
}

// URLs returns the URLs of the cached notebooks in sorted order.
func (s *Synchronizer) URLs() []string {
	return slices.Sorted(maps.Keys(s.notebooks))
}

// Resolved returns, in sorted order, the URLs the last completed pass read
// successfully.
func (s *Synchronizer) Resolved() []string {
	return slices.Sorted(maps.Keys(s.resolved))
}

// Parse classifies text and applies every directive to the notebook it
// targets. Once the sequence is exhausted the notebooks built during the pass
// replace cached entries whose cells differ, and notebooks that could not be
// read are evicted.
func (s *Synchronizer) Parse(text string) iter.Seq[markdown.Element] {
	return func(yield func(markdown.Element) bool) {
		reg := newRegistry(s.store, s.logger)
		for e := range markdown.Parse(text) {
			reg.update(e)
			if !yield(e) {
				return
			}
		}
		s.merge(reg.notebooks, reg.failed)
	}
}

func (s *Synchronizer) merge(parsed map[string]*notebook.Notebook, failed map[string]struct{}) {
	for url := range failed {
		delete(s.notebooks, url)
	}
	s.resolved = make(map[string]struct{}, len(parsed))
	for url, nb := range parsed {
		s.resolved[url] = struct{}{}
		cached, ok := s.notebooks[url]
		if ok && cached.Equal(nb) {
			continue
		}
		if ok {
			s.logger.Debug("notebook changed",
				slog.String("url", url),
				slog.String("diff", notebook.Diff("cached", "parsed", cached.Doc, nb.Doc)))
		}
		s.notebooks[url] = nb
	}
}

// Execute runs every cached notebook flagged as needing execution. An
// execution failure aborts the remaining executions and is returned.
func (s *Synchronizer) Execute(ctx context.Context) error {
	for _, url := range s.URLs() {
		nb := s.notebooks[url]
		if !nb.ExecutionNeeded {
			continue
		}
		path := s.displayPath(url)
		s.logger.Info("Executing notebook", slog.String("path", path))
		if err := nb.Execute(ctx, s.executor); err != nil {
			return fmt.Errorf("synchronizer: execute %s: %w", path, err)
		}
	}
	return nil
}

func (s *Synchronizer) displayPath(url string) string {
	if url == markdown.SelfURL {
		return SelfDisplayPath
	}
	path, err := s.store.FindPath(url)
	if err != nil {
		return url
	}
	return path
}

// Convert parses all of text, executes stale notebooks and returns the
// converted page. The returned sequence consumes the parsed directives and
// must be ranged over once.
func (s *Synchronizer) Convert(ctx context.Context, text string) (iter.Seq[Output], error) {
	elems := slices.Collect(s.Parse(text))
	if err := s.Execute(ctx); err != nil {
		return nil, err
	}

	return func(yield func(Output) bool) {
		lineStart := true
		for i, e := range elems {
			pos := position{
				lineStart: lineStart,
				lineEnd:   i+1 == len(elems) || startsLine(elems[i+1]),
			}
			for _, out := range s.convert(e, pos) {
				if md := out.Markdown(); md != "" {
					lineStart = strings.HasSuffix(md, "\n")
				}
				if !yield(out) {
					return
				}
			}
		}
	}, nil
}

// position tells whether a directive sits at the start or the end of a line.
type position struct {
	lineStart, lineEnd bool
}

func startsLine(e markdown.Element) bool {
	switch v := e.(type) {
	case markdown.Text:
		return strings.HasPrefix(string(v), "\n")
	case *markdown.CodeBlock:
		return v.Fence != ""
	default:
		return false
	}
}

func (s *Synchronizer) convert(e markdown.Element, pos position) []Output {
	switch v := e.(type) {
	case markdown.Text:
		return []Output{Literal(v)}
	case *markdown.Image:
		if suppressed(v.Identifier) {
			return nil
		}
		if _, ok := s.resolved[v.URL]; !ok {
			return nil
		}
		nb, ok := s.notebooks[v.URL]
		if !ok {
			return nil
		}
		return s.convertImage(v, nb.Doc, pos)
	case *markdown.CodeBlock:
		if suppressed(v.Identifier) {
			return nil
		}
		return convertCodeBlock(v)
	default:
		return nil
	}
}

func suppressed(identifier string) bool {
	return identifier == markdown.IdentifierSuppress || identifier == markdown.IdentifierInherit
}

// ConvertString converts text and concatenates the Markdown of every output.
func (s *Synchronizer) ConvertString(ctx context.Context, text string) (string, []*Figure, error) {
	outputs, err := s.Convert(ctx, text)
	if err != nil {
		return "", nil, err
	}
	md, figures := Render(outputs)
	return md, figures, nil
}
