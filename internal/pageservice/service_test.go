package pageservice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/nbsync/internal/apperr"
	"github.com/starford/nbsync/internal/checksum"
	"github.com/starford/nbsync/internal/index"
	"github.com/starford/nbsync/internal/notebook"
	"github.com/starford/nbsync/internal/storage"
)

// fakeKernel gives "fig" cells a PNG and every other tagged cell its
// identifier on stdout. A "boom" cell fails the execution.
var fakeKernel = notebook.ExecutorFunc(func(_ context.Context, doc *notebook.Document) error {
	png := base64.StdEncoding.EncodeToString([]byte("PNG"))
	for _, c := range doc.Cells {
		switch id := notebook.Identifier(c); id {
		case "":
		case "boom":
			return errors.New("kernel died")
		case "fig":
			c.Outputs = []*notebook.Output{{
				OutputType: notebook.OutputDisplayData,
				Data:       map[string]json.RawMessage{"image/png": json.RawMessage(`"` + png + `"`)},
			}}
		default:
			c.Outputs = []*notebook.Output{{OutputType: notebook.OutputStream, Name: "stdout", Text: notebook.MultilineString(id + "\n")}}
		}
	}
	return nil
})

const plotScript = "# %%\n# #fig\nplot()\n"

type env struct {
	docs string
	nb   string
	svc  *Service
	db   *index.DB
}

func setup(t *testing.T) *env {
	t.Helper()
	docsDir, nbDir := t.TempDir(), t.TempDir()
	if err := os.WriteFile(filepath.Join(nbDir, "plot.py"), []byte(plotScript), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(nbDir, "boom.py"), []byte("# %%\n# #boom\nraise\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	docs, err := storage.NewFS(docsDir)
	if err != nil {
		t.Fatal(err)
	}
	nbs, err := storage.NewNotebooks(nbDir)
	if err != nil {
		t.Fatal(err)
	}
	db, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &env{docs: docsDir, nb: nbDir, svc: NewService(docs, nbs, fakeKernel, db, logger), db: db}
}

func (e *env) write(t *testing.T, rel, content string) {
	t.Helper()
	p := filepath.Join(e.docs, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestBuild_Entry(t *testing.T) {
	e := setup(t)
	page := "# Plot\n\n![line](plot.py){#fig exec=1}\n\n![](.md){#v `print(1)` exec=1}\n"
	entry, err := e.svc.Build(context.Background(), "index.md", []byte(page))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(entry.Figures) != 1 || entry.Figures[0].Mime != "image/png" || string(entry.Figures[0].Content) != "PNG" {
		t.Fatalf("figures = %+v", entry.Figures)
	}
	if !strings.Contains(entry.Page.Markdown, "![line]("+entry.Figures[0].Src+"){#fig}") {
		t.Errorf("markdown = %q", entry.Page.Markdown)
	}
	if !strings.Contains(entry.Page.Markdown, "```\nv\n```") {
		t.Errorf("self notebook output missing: %q", entry.Page.Markdown)
	}
	if len(entry.Dependencies) != 1 || entry.Dependencies["plot.py"] != checksum.Sum([]byte(plotScript)) {
		t.Errorf("dependencies = %v", entry.Dependencies)
	}
}

func TestBuild_DependenciesFollowCurrentPage(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	if _, err := e.svc.Build(ctx, "p.md", []byte("![](plot.py){#fig}\n")); err != nil {
		t.Fatal(err)
	}
	entry, err := e.svc.Build(ctx, "p.md", []byte("# No plot\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entry.Dependencies) != 0 {
		t.Errorf("dependencies = %v, want none", entry.Dependencies)
	}
}

func TestBuild_FailedExecutionIsNotSticky(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	if _, err := e.svc.Build(ctx, "p.md", []byte("![](boom.py){#boom exec=1}\n")); err == nil {
		t.Fatal("expected execution error")
	}
	entry, err := e.svc.Build(ctx, "p.md", []byte("# Fixed\n"))
	if err != nil {
		t.Fatalf("rebuild after failure: %v", err)
	}
	if entry.Page.Markdown != "# Fixed\n" {
		t.Errorf("markdown = %q", entry.Page.Markdown)
	}
}

func TestNotebookChecksum_TracksEdits(t *testing.T) {
	e := setup(t)
	before, err := e.svc.NotebookChecksum("plot.py")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(e.nb, "plot.py"), []byte("# %%\n# #fig\nplot(2)\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	after, _ := e.svc.NotebookChecksum("plot.py")
	if before == after {
		t.Error("checksum unchanged after edit")
	}
	if _, err := e.svc.NotebookChecksum("missing.py"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestBuild_PagesKeepSeparateSelfNotebooks(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	a, _ := e.svc.Build(ctx, "a.md", []byte("![](.md){#alpha `1` exec=1}"))
	b, _ := e.svc.Build(ctx, "b.md", []byte("![](.md){#beta `2` exec=1}"))
	if a.Page.Markdown != "```\nalpha\n```" || b.Page.Markdown != "```\nbeta\n```" {
		t.Errorf("a = %q, b = %q", a.Page.Markdown, b.Page.Markdown)
	}
}

func TestGetPage_BuildsOnDemand(t *testing.T) {
	e := setup(t)
	e.write(t, "guide/plot.md", "![](plot.py){#fig exec=1}")

	p, err := e.svc.GetPage(context.Background(), "guide/plot.md")
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if len(p.Figures) != 1 {
		t.Fatalf("figures = %+v", p.Figures)
	}
	f, err := e.svc.GetFigure(context.Background(), p.Figures[0].Src)
	if err != nil || string(f.Content) != "PNG" {
		t.Errorf("figure = %+v, err = %v", f, err)
	}
}

func TestGetPage_NotFound(t *testing.T) {
	e := setup(t)
	if _, err := e.svc.GetPage(context.Background(), "missing.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSyncAndList(t *testing.T) {
	e := setup(t)
	e.write(t, "a.md", "# A")
	e.write(t, "sub/b.md", "# B")
	if err := e.svc.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	pages, err := e.svc.ListPages(context.Background())
	if err != nil {
		t.Fatalf("ListPages: %v", err)
	}
	if len(pages) != 2 || pages[0].Path != "a.md" || pages[1].Path != "sub/b.md" {
		t.Errorf("pages = %+v", pages)
	}
	res, err := e.svc.Search(context.Background(), "zzz", 10)
	if err != nil || res == nil || len(res) != 0 {
		t.Errorf("search = %v, %v", res, err)
	}
}

func TestExport(t *testing.T) {
	e := setup(t)
	e.write(t, "guide/plot.md", "![](plot.py){#fig exec=1}\n")
	if err := e.svc.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}

	outDir := t.TempDir()
	out, _ := storage.NewFS(outDir)
	n, err := e.svc.Export(context.Background(), out)
	if err != nil || n != 1 {
		t.Fatalf("Export = %d, %v", n, err)
	}

	md, err := os.ReadFile(filepath.Join(outDir, "guide", "plot.md"))
	if err != nil {
		t.Fatal(err)
	}
	p, _ := e.db.GetPage("guide/plot.md")
	if string(md) != p.Markdown {
		t.Errorf("exported markdown = %q", md)
	}
	fig, err := os.ReadFile(filepath.Join(outDir, "guide", p.Figures[0].Src))
	if err != nil || string(fig) != "PNG" {
		t.Errorf("figure = %q, err = %v", fig, err)
	}
}

func TestExport_RemovesStaleFiles(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.write(t, "plot.md", "![](plot.py){#fig exec=1}\n")
	if err := e.svc.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	outDir := t.TempDir()
	out, _ := storage.NewFS(outDir)
	if err := os.WriteFile(filepath.Join(outDir, "keep.txt"), []byte("mine"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := e.svc.Export(ctx, out); err != nil {
		t.Fatal(err)
	}
	first, _ := e.db.GetPage("plot.md")

	// Figure names change on every conversion.
	second, err := e.svc.Rebuild(ctx, "plot.md")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.svc.Export(ctx, out); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(outDir, first.Figures[0].Src)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("stale figure still present: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, second.Figures[0].Src)); err != nil {
		t.Errorf("current figure missing: %v", err)
	}
	if data, err := os.ReadFile(filepath.Join(outDir, "keep.txt")); err != nil || string(data) != "mine" {
		t.Errorf("unrelated file touched: %q, %v", data, err)
	}
}

func TestForget_DropsSynchronizer(t *testing.T) {
	e := setup(t)
	if _, err := e.svc.Build(context.Background(), "a.md", []byte("plain\n")); err != nil {
		t.Fatal(err)
	}
	if len(e.svc.syncs) != 1 {
		t.Fatalf("syncs = %d, want 1", len(e.svc.syncs))
	}
	e.svc.Forget("a.md")
	if len(e.svc.syncs) != 0 {
		t.Errorf("syncs = %d after Forget", len(e.svc.syncs))
	}
}
