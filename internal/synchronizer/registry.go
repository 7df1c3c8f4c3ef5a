package synchronizer

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/starford/nbsync/internal/markdown"
	"github.com/starford/nbsync/internal/notebook"
)

// registry collects the notebooks referenced during one parse pass.
type registry struct {
	store     Store
	logger    *slog.Logger
	notebooks map[string]*notebook.Notebook
	failed    map[string]struct{}
}

func newRegistry(store Store, logger *slog.Logger) *registry {
	return &registry{
		store:     store,
		logger:    logger,
		notebooks: make(map[string]*notebook.Notebook),
		failed:    make(map[string]struct{}),
	}
}

// update applies a directive to the notebook its URL names: it consumes the
// exec attribute and appends the source of code blocks as a new cell.
func (r *registry) update(e markdown.Element) {
	var d *markdown.Directive
	switch v := e.(type) {
	case *markdown.Image:
		d = &v.Directive
	case *markdown.CodeBlock:
		d = &v.Directive
	default:
		return
	}

	nb, ok := r.lookup(d.URL)
	if !ok {
		return
	}

	if v, ok := d.Attributes.Pop("exec"); ok && isTruthy(v) {
		nb.SetExecutionNeeded()
	}

	if cb, ok := e.(*markdown.CodeBlock); ok {
		nb.AddCell(cb.Identifier, markdown.Dedent(cb.Source))
	}
}

// lookup returns the notebook for url, reading it on first reference.
// A failed read is logged once and the URL is skipped for the rest of the pass.
func (r *registry) lookup(url string) (*notebook.Notebook, bool) {
	if nb, ok := r.notebooks[url]; ok {
		return nb, true
	}
	if _, ok := r.failed[url]; ok {
		return nil, false
	}

	if url == markdown.SelfURL {
		nb := notebook.Wrap(notebook.New())
		r.notebooks[url] = nb
		return nb, true
	}

	doc, err := r.store.Read(url)
	if err != nil {
		r.logger.Warn("notebook read failed", slog.String("url", url), slog.String("error", err.Error()))
		r.failed[url] = struct{}{}
		return nil, false
	}
	nb := notebook.Wrap(doc)
	r.notebooks[url] = nb
	return nb, true
}

func isTruthy(v string) bool {
	return slices.Contains([]string{"yes", "true", "1", "on"}, strings.ToLower(v))
}
