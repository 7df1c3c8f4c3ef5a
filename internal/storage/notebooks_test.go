package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/nbsync/internal/apperr"
	"github.com/starford/nbsync/internal/notebook"
)

const ipynb = `{"cells": [{"cell_type": "code", "source": "# #id\nprint(1+1)", "metadata": {}, "outputs": [], "execution_count": null}],
"metadata": {}, "nbformat": 4, "nbformat_minor": 5}`

func notebookDirs(t *testing.T) (string, string) {
	t.Helper()
	a, b := t.TempDir(), t.TempDir()
	if err := os.WriteFile(filepath.Join(a, "a.ipynb"), []byte(ipynb), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(b, "b.py"), []byte("# %%\n# #x\nx = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(b, "a.ipynb"), []byte("shadowed"), 0o644); err != nil {
		t.Fatal(err)
	}
	return a, b
}

func TestNotebooks_ReadSearchesRootsInOrder(t *testing.T) {
	a, b := notebookDirs(t)
	store, err := NewNotebooks(a, b)
	if err != nil {
		t.Fatalf("NewNotebooks: %v", err)
	}

	doc, err := store.Read("a.ipynb")
	if err != nil {
		t.Fatalf("Read a.ipynb: %v", err)
	}
	if src, _ := notebook.Source(doc, "id"); src != "print(1+1)" {
		t.Errorf("source = %q", src)
	}

	doc, err = store.Read("b.py")
	if err != nil {
		t.Fatalf("Read b.py: %v", err)
	}
	if src, _ := notebook.Source(doc, "x"); src != "x = 1" {
		t.Errorf("source = %q", src)
	}
}

func TestNotebooks_ReadReturnsFreshDocuments(t *testing.T) {
	a, b := notebookDirs(t)
	store, _ := NewNotebooks(a, b)
	first, _ := store.Read("a.ipynb")
	first.Cells = nil
	second, err := store.Read("a.ipynb")
	if err != nil || len(second.Cells) != 1 {
		t.Errorf("second read should be unaffected: cells = %d, err = %v", len(second.Cells), err)
	}
}

func TestNotebooks_Errors(t *testing.T) {
	a, b := notebookDirs(t)
	store, _ := NewNotebooks(a, b)

	if _, err := store.Read("missing.ipynb"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing: err = %v", err)
	}
	if _, err := store.Read("data.csv"); !errors.Is(err, apperr.ErrUnsupported) {
		t.Errorf("unsupported: err = %v", err)
	}
	if _, err := store.Read("../outside.ipynb"); err == nil {
		t.Error("expected error for traversal")
	}
}

func TestNotebooks_FindPath(t *testing.T) {
	a, b := notebookDirs(t)
	store, _ := NewNotebooks(a, b)
	p, err := store.FindPath("b.py")
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	if filepath.Dir(p) != store.Roots()[1] {
		t.Errorf("path = %q, want under %q", p, store.Roots()[1])
	}
}

func TestNewNotebooks_RequiresDir(t *testing.T) {
	if _, err := NewNotebooks(); err == nil {
		t.Error("expected error without directories")
	}
}
