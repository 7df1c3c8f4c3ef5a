package render

import (
	"strings"
	"testing"
)

func TestRender_GFM(t *testing.T) {
	r := New("/api/figures/")
	out, err := r.Render([]byte("# Title\n\n| a | b |\n|---|---|\n| 1 | 2 |\n\n- [x] done\n"), nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	html := string(out)
	for _, want := range []string{`<h1 id="title">Title</h1>`, "<table>", `type="checkbox"`} {
		if !strings.Contains(html, want) {
			t.Errorf("missing %q in:\n%s", want, html)
		}
	}
}

func TestRender_FigureLinks(t *testing.T) {
	r := New("/api/figures/")
	md := "![plot](abc.png){#fig .wide}\n\n![logo](logo.png)\n"
	out, err := r.Render([]byte(md), []string{"abc.png"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	html := string(out)
	for _, want := range []string{`src="/api/figures/abc.png"`, `id="fig"`, `class="wide"`, `src="logo.png"`} {
		if !strings.Contains(html, want) {
			t.Errorf("missing %q in:\n%s", want, html)
		}
	}
	if strings.Contains(html, "{#fig") {
		t.Errorf("attribute list leaked:\n%s", html)
	}
}

func TestRender_RawHTMLOutput(t *testing.T) {
	r := New("/f/")
	out, err := r.Render([]byte("<div class=\"output\">42</div>\n"), nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(string(out), `<div class="output">42</div>`) {
		t.Errorf("raw html dropped: %s", out)
	}
}

func TestRender_QuotedAttributeValue(t *testing.T) {
	r := New("/f/")
	out, err := r.Render([]byte("![plot](abc.png){#fig title=\"a b\" width='3in'}\n"), nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	html := string(out)
	for _, want := range []string{`title="a b"`, `width="3in"`, `id="fig"`} {
		if !strings.Contains(html, want) {
			t.Errorf("missing %q in:\n%s", want, html)
		}
	}
	if strings.Contains(html, `b"`+"}") || strings.Contains(html, "{#fig") {
		t.Errorf("attribute list leaked:\n%s", html)
	}
}
