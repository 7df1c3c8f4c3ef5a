package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/starford/nbsync/internal/apperr"
	"github.com/starford/nbsync/internal/checksum"
	"github.com/starford/nbsync/internal/markdown"
	"github.com/starford/nbsync/internal/notebook"
)

// Notebooks resolves notebook URLs against an ordered list of source roots.
// The first root holding the file wins.
type Notebooks struct {
	roots []*FS
}

// NewNotebooks creates a store searching dirs in order.
func NewNotebooks(dirs ...string) (*Notebooks, error) {
	if len(dirs) == 0 {
		return nil, fmt.Errorf("storage: at least one notebook directory is required")
	}
	n := &Notebooks{}
	for _, dir := range dirs {
		root, err := NewFS(dir)
		if err != nil {
			return nil, err
		}
		n.roots = append(n.roots, root)
	}
	return n, nil
}

// Roots returns the absolute source directories in search order.
func (n *Notebooks) Roots() []string {
	out := make([]string, len(n.roots))
	for i, r := range n.roots {
		out[i] = r.Root()
	}
	return out
}

// FindPath returns the absolute path of the notebook named by url.
func (n *Notebooks) FindPath(url string) (string, error) {
	if !markdown.HasSupportedExtension(url) {
		return "", fmt.Errorf("storage: %s: %w", url, apperr.ErrUnsupported)
	}
	for _, root := range n.roots {
		abs, err := root.safePath(url)
		if err != nil {
			continue
		}
		info, err := os.Stat(abs)
		if err == nil && !info.IsDir() {
			return abs, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("storage: stat %s: %w", url, err)
		}
	}
	return "", fmt.Errorf("storage: notebook %s: %w", url, apperr.ErrNotFound)
}

// Read decodes the notebook named by url. Every call returns a fresh document.
func (n *Notebooks) Read(url string) (*notebook.Document, error) {
	abs, err := n.FindPath(url)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", url, err)
	}
	doc, err := notebook.Decode(url, data)
	if err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", url, err)
	}
	return doc, nil
}

// Checksum returns the checksum of the notebook file named by url.
func (n *Notebooks) Checksum(url string) (string, error) {
	abs, err := n.FindPath(url)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("storage: read %s: %w", url, err)
	}
	return checksum.Sum(data), nil
}
