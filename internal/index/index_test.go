package index

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/nbsync/internal/apperr"
	"github.com/starford/nbsync/internal/checksum"
	"github.com/starford/nbsync/internal/storage"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "nbsync-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// echoBuilder stores the page text as its markdown. Lines of the form
// "uses: <url>" declare notebook dependencies.
var echoBuilder = BuilderFunc(func(_ context.Context, path string, data []byte) (*Entry, error) {
	e := &Entry{Page: PageRow{Checksum: checksum.Sum(data), Markdown: string(data), UpdatedAt: time.Now()}}
	for _, line := range strings.Split(string(data), "\n") {
		if url, ok := strings.CutPrefix(line, "uses: "); ok {
			if e.Dependencies == nil {
				e.Dependencies = make(map[string]string)
			}
			e.Dependencies[url] = ""
		}
	}
	return e, nil
})

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"pages", "figures", "dependencies"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestUpsertAndGetChecksum(t *testing.T) {
	db := testDB(t)
	row := PageRow{Path: "hello.md", Checksum: "abc123", Markdown: "# Hello", UpdatedAt: time.Now()}
	if err := db.UpsertPage(row, nil, map[string]string{"a.ipynb": "c1"}); err != nil {
		t.Fatalf("UpsertPage: %v", err)
	}
	cs, err := db.GetChecksum("hello.md")
	if err != nil {
		t.Fatalf("GetChecksum: %v", err)
	}
	if cs != "abc123" {
		t.Errorf("checksum = %q, want %q", cs, "abc123")
	}
	deps, err := db.AllDependencies()
	if err != nil {
		t.Fatalf("AllDependencies: %v", err)
	}
	if got := deps["hello.md"]["a.ipynb"]; got != "c1" {
		t.Errorf("dependency checksum = %q, want %q", got, "c1")
	}
}

func TestGetPage_WithFigures(t *testing.T) {
	db := testDB(t)
	figs := []FigureRow{
		{Src: "b.png", Mime: "image/png", Content: []byte("PNG")},
		{Src: "a.svg", Mime: "image/svg+xml", Content: []byte("<svg/>")},
	}
	if err := db.UpsertPage(PageRow{Path: "p.md", Checksum: "1", Markdown: "![](a.svg)", UpdatedAt: time.Now()}, figs, nil); err != nil {
		t.Fatalf("UpsertPage: %v", err)
	}

	p, err := db.GetPage("p.md")
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if p.Markdown != "![](a.svg)" || len(p.Figures) != 2 {
		t.Fatalf("page = %+v", p)
	}
	if p.Figures[0].Src != "a.svg" || p.Figures[0].Size != 6 || p.Figures[0].Page != "p.md" {
		t.Errorf("figure ref = %+v", p.Figures[0])
	}

	f, err := db.GetFigure("b.png")
	if err != nil {
		t.Fatalf("GetFigure: %v", err)
	}
	if f.Page != "p.md" || f.Mime != "image/png" || string(f.Content) != "PNG" {
		t.Errorf("figure = %+v", f)
	}
}

func TestGetPage_NotFound(t *testing.T) {
	db := testDB(t)
	if _, err := db.GetPage("nope.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("GetPage err = %v", err)
	}
	if _, err := db.GetFigure("nope.png"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("GetFigure err = %v", err)
	}
}

func TestDependents(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertPage(PageRow{Path: "a.md", Checksum: "1", UpdatedAt: time.Now()}, nil, map[string]string{"nb.ipynb": ""})
	_ = db.UpsertPage(PageRow{Path: "c.md", Checksum: "2", UpdatedAt: time.Now()}, nil, map[string]string{"nb.ipynb": "", "other.py": ""})

	deps, err := db.Dependents("nb.ipynb")
	if err != nil {
		t.Fatalf("Dependents: %v", err)
	}
	if len(deps) != 2 || deps[0] != "a.md" || deps[1] != "c.md" {
		t.Fatalf("dependents = %v", deps)
	}
}

func TestDeletePage(t *testing.T) {
	db := testDB(t)
	figs := []FigureRow{{Src: "x.png", Mime: "image/png", Content: []byte("x")}}
	_ = db.UpsertPage(PageRow{Path: "del.md", Checksum: "x", UpdatedAt: time.Now()}, figs, map[string]string{"nb.py": ""})

	if err := db.DeletePage("del.md"); err != nil {
		t.Fatalf("DeletePage: %v", err)
	}
	if cs, _ := db.GetChecksum("del.md"); cs != "" {
		t.Errorf("deleted page still has checksum %q", cs)
	}
	if deps, _ := db.Dependents("nb.py"); len(deps) != 0 {
		t.Errorf("expected no dependents after delete, got %v", deps)
	}
	if _, err := db.GetFigure("x.png"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("figure should be gone: %v", err)
	}
}

func TestUpsertReplacesFiguresAndDependencies(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertPage(PageRow{Path: "up.md", Checksum: "1", UpdatedAt: now},
		[]FigureRow{{Src: "old.png", Mime: "image/png", Content: []byte("o")}}, map[string]string{"x.py": ""})
	_ = db.UpsertPage(PageRow{Path: "up.md", Checksum: "2", UpdatedAt: now},
		[]FigureRow{{Src: "new.png", Mime: "image/png", Content: []byte("n")}}, map[string]string{"y.py": ""})

	if cs, _ := db.GetChecksum("up.md"); cs != "2" {
		t.Errorf("checksum = %q, want %q", cs, "2")
	}
	if _, err := db.GetFigure("old.png"); err == nil {
		t.Error("old figure should be removed on upsert")
	}
	if _, err := db.GetFigure("new.png"); err != nil {
		t.Errorf("new figure missing: %v", err)
	}
	if deps, _ := db.Dependents("x.py"); len(deps) != 0 {
		t.Error("old dependency should be removed on upsert")
	}
	if deps, _ := db.Dependents("y.py"); len(deps) != 1 {
		t.Error("new dependency should exist")
	}
}

func TestGetChecksum_NotFound(t *testing.T) {
	db := testDB(t)
	cs, err := db.GetChecksum("nonexistent.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs != "" {
		t.Errorf("expected empty checksum, got %q", cs)
	}
}

func TestListPages_Sorted(t *testing.T) {
	db := testDB(t)
	for _, p := range []string{"b.md", "a.md", "sub/c.md"} {
		_ = db.UpsertPage(PageRow{Path: p, Checksum: p, UpdatedAt: time.Now()}, nil, nil)
	}
	pages, err := db.ListPages()
	if err != nil {
		t.Fatalf("ListPages: %v", err)
	}
	var got []string
	for _, p := range pages {
		got = append(got, p.Path)
	}
	if strings.Join(got, ",") != "a.md,b.md,sub/c.md" {
		t.Errorf("pages = %v", got)
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertPage(PageRow{Path: "s.md", Checksum: "1", Markdown: "uniqueword appears here", UpdatedAt: time.Now()}, nil, nil)

	results, err := db.Search("uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != "s.md" {
		t.Errorf("search results = %+v, want 1 hit for s.md", results)
	}
}

func TestSync_IndexesAndRemovesStale(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	db := testDB(t)
	_ = db.UpsertPage(PageRow{Path: "stale.md", Checksum: "s", UpdatedAt: time.Now()}, nil, nil)
	_ = os.WriteFile(filepath.Join(dir, "page.md"), []byte("# Page\nuses: a.py\n"), 0o644)

	if err := Sync(context.Background(), db, store, echoBuilder, quietLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if cs, _ := db.GetChecksum("stale.md"); cs != "" {
		t.Error("stale page should be removed")
	}
	p, err := db.GetPage("page.md")
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if p.Checksum != checksum.Sum([]byte("# Page\nuses: a.py\n")) {
		t.Errorf("checksum = %q", p.Checksum)
	}
	if deps, _ := db.Dependents("a.py"); len(deps) != 1 {
		t.Errorf("dependents = %v", deps)
	}
}

func TestSync_SkipsUnchanged(t *testing.T) {
	dir := t.TempDir()
	store, _ := storage.NewFS(dir)
	db := testDB(t)
	_ = os.WriteFile(filepath.Join(dir, "page.md"), []byte("same"), 0o644)

	builds := 0
	b := BuilderFunc(func(ctx context.Context, path string, data []byte) (*Entry, error) {
		builds++
		return echoBuilder(ctx, path, data)
	})
	_ = Sync(context.Background(), db, store, b, quietLogger())
	_ = Sync(context.Background(), db, store, b, quietLogger())
	if builds != 1 {
		t.Errorf("builds = %d, want 1", builds)
	}
}

// versionedBuilder is echoBuilder with notebook checksums taken from versions.
type versionedBuilder struct {
	versions map[string]string
	built    []string
}

func (b *versionedBuilder) Build(ctx context.Context, path string, data []byte) (*Entry, error) {
	b.built = append(b.built, path)
	e, err := echoBuilder(ctx, path, data)
	if err != nil {
		return nil, err
	}
	for url := range e.Dependencies {
		e.Dependencies[url] = b.versions[url]
	}
	return e, nil
}

func (b *versionedBuilder) NotebookChecksum(url string) (string, error) {
	v, ok := b.versions[url]
	if !ok {
		return "", apperr.ErrNotFound
	}
	return v, nil
}

func TestSync_RebuildsWhenNotebookChanged(t *testing.T) {
	dir := t.TempDir()
	store, _ := storage.NewFS(dir)
	db := testDB(t)
	_ = os.WriteFile(filepath.Join(dir, "uses.md"), []byte("uses: a.py\n"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "plain.md"), []byte("# Plain\n"), 0o644)

	b := &versionedBuilder{versions: map[string]string{"a.py": "v1"}}
	ctx := context.Background()
	_ = Sync(ctx, db, store, b, quietLogger())
	if len(b.built) != 2 {
		t.Fatalf("first sync built %v", b.built)
	}

	b.built = nil
	_ = Sync(ctx, db, store, b, quietLogger())
	if len(b.built) != 0 {
		t.Fatalf("nothing changed, rebuilt %v", b.built)
	}

	b.versions["a.py"] = "v2"
	_ = Sync(ctx, db, store, b, quietLogger())
	if len(b.built) != 1 || b.built[0] != "uses.md" {
		t.Errorf("after notebook change rebuilt %v, want [uses.md]", b.built)
	}

	b.built = nil
	delete(b.versions, "a.py")
	_ = Sync(ctx, db, store, b, quietLogger())
	if len(b.built) != 1 || b.built[0] != "uses.md" {
		t.Errorf("after notebook removal rebuilt %v, want [uses.md]", b.built)
	}
}

func TestRelTo(t *testing.T) {
	root := filepath.Join("tmp", "docs")
	cases := []struct {
		path string
		want string
		ok   bool
	}{
		{filepath.Join(root, "a.md"), "a.md", true},
		{filepath.Join(root, "sub", "b.py"), "sub/b.py", true},
		{root, "", false},
		{filepath.Join("tmp", "other", "a.md"), "", false},
	}
	for _, tc := range cases {
		got, ok := relTo(root, tc.path)
		if got != tc.want || ok != tc.ok {
			t.Errorf("relTo(%q) = %q, %v; want %q, %v", tc.path, got, ok, tc.want, tc.ok)
		}
	}
}
