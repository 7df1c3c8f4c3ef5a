package synchronizer

import (
	"log/slog"
	"strings"

	"github.com/starford/nbsync/internal/markdown"
	"github.com/starford/nbsync/internal/notebook"
)

// sourceOnly shows the source of a cell without its output.
const sourceOnly = "only"

// convertImage emits the source and output of the cell an image names.
func (s *Synchronizer) convertImage(img *markdown.Image, doc *notebook.Document, pos position) []Output {
	source, _ := img.Attributes.Pop("source")
	showSource := isTruthy(source) || source == sourceOnly

	var out []Output
	if showSource {
		code, err := sourceBlock(img, doc)
		if err != nil {
			s.lookupFailed(img, err)
			return nil
		}
		if code != "" {
			out = append(out, Literal(code))
			pos.lineStart = true
		}
	}
	if source == sourceOnly {
		return out
	}

	content, ok, err := notebook.MimeContent(doc, img.Identifier)
	if err != nil {
		s.lookupFailed(img, err)
		return out
	}
	if ok {
		return append(out, newOutput(img, content, pos))
	}

	// A cell without output still shows its source.
	if !showSource {
		code, err := sourceBlock(img, doc)
		if err != nil {
			s.lookupFailed(img, err)
			return nil
		}
		if code != "" {
			out = append(out, Literal(code))
		}
	}
	return out
}

func (s *Synchronizer) lookupFailed(img *markdown.Image, err error) {
	s.logger.Warn("cell lookup failed",
		slog.String("url", img.URL),
		slog.String("identifier", img.Identifier),
		slog.String("error", err.Error()))
}

// sourceBlock renders the cell source as a fenced block in the notebook
// language, carrying the image's classes and attributes. Empty sources give "".
func sourceBlock(img *markdown.Image, doc *notebook.Document) (string, error) {
	src, err := notebook.Source(doc, img.Identifier)
	if err != nil || src == "" {
		return "", err
	}
	attrs := append([]string{"." + notebook.Language(doc)}, img.Parts(false)...)
	return "```{" + strings.Join(attrs, " ") + "}\n" + src + "\n```\n\n", nil
}

// convertCodeBlock re-emits a code block whose source attribute is truthy.
// Its opening fence is rebuilt without URL, identifier and consumed
// attributes; the body is copied unchanged.
func convertCodeBlock(cb *markdown.CodeBlock) []Output {
	source, _ := cb.Attributes.Pop("source")
	if !isTruthy(source) {
		return nil
	}
	_, rest, _ := strings.Cut(cb.Text, "\n")
	return []Output{Literal(cb.Indent + cb.Fence + infoString(cb) + "\n" + rest)}
}

func infoString(cb *markdown.CodeBlock) string {
	var bare, braced []string
	for _, c := range cb.Classes {
		if strings.HasPrefix(c, ".") {
			braced = append(braced, c)
		} else {
			bare = append(bare, c)
		}
	}
	braced = append(braced, cb.Attributes.Parts()...)

	info := strings.Join(bare, " ")
	if len(braced) > 0 {
		info = strings.TrimSpace(info + " {" + strings.Join(braced, " ") + "}")
	}
	return info
}
