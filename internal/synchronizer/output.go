package synchronizer

import (
	"iter"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/nbsync/internal/markdown"
	"github.com/starford/nbsync/internal/notebook"
)

// Output is one of Literal or *Figure.
type Output interface {
	Markdown() string
	output()
}

// Literal is Markdown emitted as is.
type Literal string

// Markdown returns l.
func (l Literal) Markdown() string { return string(l) }

// Figure is a cell output rendered as an image reference. Content is written
// next to the page under Src by the caller.
type Figure struct {
	Image   *markdown.Image
	Mime    string
	Content []byte
	// Src is a fresh file name whose extension follows Mime.
	Src string
}

// Markdown renders the image with Src in place of the notebook URL.
func (f *Figure) Markdown() string {
	src := f.Src
	if src == "" {
		src = f.Image.URL
	}
	return "![" + f.Image.Alt + "](" + src + "){" + strings.Join(f.Image.Parts(true), " ") + "}"
}

func (Literal) output() {}
func (*Figure) output() {}

// newOutput turns selected cell content into an Output. Textual content is
// emitted in place; everything else becomes a figure. Plain text is fenced on
// lines of its own wherever the directive sat.
func newOutput(img *markdown.Image, c notebook.Content, pos position) Output {
	if strings.HasPrefix(c.Mime, "text/") && !c.Binary {
		text := strings.TrimRight(string(c.Data), "\n")
		if c.Mime != "text/plain" {
			return Literal(text)
		}
		fence := "```\n" + text + "\n```"
		if !pos.lineStart {
			fence = "\n" + fence
		}
		if !pos.lineEnd {
			fence += "\n"
		}
		return Literal(fence)
	}
	return &Figure{
		Image:   img,
		Mime:    c.Mime,
		Content: c.Data,
		Src:     uuid.NewString() + "." + Extension(c.Mime),
	}
}

// Extension derives a file extension from a MIME type: "image/svg+xml"
// gives "svg", "image/png" gives "png".
func Extension(mime string) string {
	_, sub, ok := strings.Cut(mime, "/")
	if !ok {
		return "bin"
	}
	sub, _, _ = strings.Cut(sub, "+")
	return sub
}

// Render concatenates the Markdown of outputs and collects the figures.
func Render(outputs iter.Seq[Output]) (string, []*Figure) {
	var b strings.Builder
	var figures []*Figure
	for out := range outputs {
		if f, ok := out.(*Figure); ok {
			figures = append(figures, f)
		}
		b.WriteString(out.Markdown())
	}
	return b.String(), figures
}
