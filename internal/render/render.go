// Package render turns converted pages into HTML for the preview server.
package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/starford/nbsync/internal/markdown"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

var figuresKey = parser.NewContextKey()

// Renderer converts Markdown to HTML with GFM extensions. It is safe for
// concurrent use.
type Renderer struct {
	engine goldmark.Markdown
}

// New creates a Renderer. Images naming a page figure are pointed at
// figureBase followed by the figure file name.
func New(figureBase string) *Renderer {
	return &Renderer{engine: goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify, extension.TaskList),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithASTTransformers(util.Prioritized(&figureLinker{base: figureBase}, 100)),
		),
		// Cell outputs may be raw HTML.
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)}
}

// Render converts src to HTML. figures are the file names of the
// figures stored for the page.
func (r *Renderer) Render(src []byte, figures []string) ([]byte, error) {
	set := make(map[string]struct{}, len(figures))
	for _, f := range figures {
		set[f] = struct{}{}
	}
	pc := parser.NewContext()
	pc.Set(figuresKey, set)

	var buf bytes.Buffer
	if err := r.engine.Convert(src, &buf, parser.WithContext(pc)); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}

// figureLinker rewrites figure image destinations and moves a trailing
// {#id .class key=value} list onto the image.
type figureLinker struct {
	base string
}

func (l *figureLinker) Transform(doc *ast.Document, reader text.Reader, pc parser.Context) {
	figures, _ := pc.Get(figuresKey).(map[string]struct{})
	source := reader.Source()

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		img, ok := n.(*ast.Image)
		if !entering || !ok {
			return ast.WalkContinue, nil
		}
		if _, ok := figures[string(img.Destination)]; ok {
			img.Destination = []byte(l.base + string(img.Destination))
		}
		if next, ok := img.NextSibling().(*ast.Text); ok {
			v := next.Segment.Value(source)
			if end := bytes.IndexByte(v, '}'); bytes.HasPrefix(v, []byte("{")) && end > 0 {
				setAttributes(img, string(v[1:end]))
				next.Segment = next.Segment.WithStart(next.Segment.Start + end + 1)
			}
		}
		return ast.WalkSkipChildren, nil
	})
}

func setAttributes(n ast.Node, list string) {
	var classes []string
	for _, tok := range markdown.SplitTokens(list) {
		switch {
		case strings.HasPrefix(tok, "#"):
			n.SetAttributeString("id", []byte(tok[1:]))
		case strings.HasPrefix(tok, "."):
			classes = append(classes, tok[1:])
		default:
			if k, v, ok := strings.Cut(tok, "="); ok {
				n.SetAttributeString(k, []byte(markdown.Unquote(v)))
			}
		}
	}
	if len(classes) > 0 {
		n.SetAttributeString("class", []byte(strings.Join(classes, " ")))
	}
}
