package notebook

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrCellNotFound  = errors.New("notebook: cell not found")
	ErrAmbiguousCell = errors.New("notebook: ambiguous cell identifier")
)

// DefaultLanguage is reported when a document carries no kernel metadata.
const DefaultLanguage = "python"

// mimePreference orders the MIME types MimeContent looks for.
var mimePreference = []string{
	"image/svg+xml",
	"image/png",
	"image/jpeg",
	"image/gif",
	"application/pdf",
	"text/html",
	"text/markdown",
	"text/plain",
}

// Content is the selected output of a cell.
type Content struct {
	Mime string
	Data []byte
	// Binary is set when Data was base64-decoded from the notebook.
	Binary bool
}

// NewCodeCell returns a code cell whose first line tags it with identifier.
func NewCodeCell(identifier, source string) *Cell {
	return &Cell{
		ID:       strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		CellType: CellCode,
		Source:   MultilineString("# #" + identifier + "\n" + source),
		Metadata: map[string]any{},
	}
}

// Identifier returns the identifier tagged on the first line of a cell,
// written as a comment token such as "# #fig" or "// #fig".
func Identifier(c *Cell) string {
	line, _, _ := strings.Cut(string(c.Source), "\n")
	fields := strings.Fields(line)
	if len(fields) < 2 || !strings.HasPrefix(fields[1], "#") || len(fields[1]) < 2 {
		return ""
	}
	return fields[1][1:]
}

func findCell(doc *Document, identifier string) (*Cell, error) {
	var found *Cell
	for _, c := range doc.Cells {
		if c.CellType != CellCode || Identifier(c) != identifier {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: %q", ErrAmbiguousCell, identifier)
		}
		found = c
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %q", ErrCellNotFound, identifier)
	}
	return found, nil
}

// Source returns the source of the cell tagged identifier without its tag line.
func Source(doc *Document, identifier string) (string, error) {
	c, err := findCell(doc, identifier)
	if err != nil {
		return "", err
	}
	_, body, _ := strings.Cut(string(c.Source), "\n")
	return strings.TrimRight(strings.TrimLeft(body, "\n"), " \t\n"), nil
}

// Language returns the kernel language of doc.
func Language(doc *Document) string {
	for _, key := range []string{"kernelspec", "language_info"} {
		m, ok := doc.Metadata[key].(map[string]any)
		if !ok {
			continue
		}
		field := "language"
		if key == "language_info" {
			field = "name"
		}
		if lang, ok := m[field].(string); ok && lang != "" {
			return lang
		}
	}
	return DefaultLanguage
}

// MimeContent returns the preferred output of the cell tagged identifier.
// The boolean is false when the cell exists but has no usable output.
func MimeContent(doc *Document, identifier string) (Content, bool, error) {
	c, err := findCell(doc, identifier)
	if err != nil {
		return Content{}, false, err
	}
	for _, mime := range mimePreference {
		for _, out := range c.Outputs {
			if content, ok := out.content(mime); ok {
				return content, true, nil
			}
		}
	}
	return Content{}, false, nil
}

func (o *Output) content(mime string) (Content, bool) {
	switch o.OutputType {
	case OutputStream:
		if mime != "text/plain" || o.Name == "stderr" || o.Text == "" {
			return Content{}, false
		}
		return Content{Mime: mime, Data: []byte(o.Text)}, true

	case OutputDisplayData, OutputExecuteResult:
		raw, ok := o.Data[mime]
		if !ok {
			return Content{}, false
		}
		var text MultilineString
		if err := json.Unmarshal(raw, &text); err != nil {
			return Content{}, false
		}
		if !isBinary(mime) {
			return Content{Mime: mime, Data: []byte(text)}, true
		}
		data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(string(text), "\n", ""))
		if err != nil {
			return Content{}, false
		}
		return Content{Mime: mime, Data: data, Binary: true}, true
	}
	return Content{}, false
}

func isBinary(mime string) bool {
	return !strings.HasPrefix(mime, "text/") && !strings.HasSuffix(mime, "+xml") && !strings.HasSuffix(mime, "json")
}

// Equal reports whether a and b hold the same cells, by type and source, in
// the same order. Outputs are not compared.
func Equal(a, b *Document) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.Cells) != len(b.Cells) {
		return false
	}
	for i := range a.Cells {
		if a.Cells[i].CellType != b.Cells[i].CellType || a.Cells[i].Source != b.Cells[i].Source {
			return false
		}
	}
	return true
}
