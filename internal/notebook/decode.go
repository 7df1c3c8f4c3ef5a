package notebook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/adrg/frontmatter"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/starford/nbsync/internal/markdown"
)

var ErrInvalid = errors.New("notebook: invalid document")

// ipynbSchema is the subset of the nbformat v4 schema the decoder relies on.
const ipynbSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["cells", "metadata", "nbformat"],
	"properties": {
		"nbformat": {"type": "integer", "minimum": 4, "maximum": 4},
		"metadata": {"type": "object"},
		"cells": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["cell_type", "source"],
				"properties": {
					"cell_type": {"enum": ["code", "markdown", "raw"]},
					"source": {
						"oneOf": [
							{"type": "string"},
							{"type": "array", "items": {"type": "string"}}
						]
					},
					"outputs": {"type": "array"}
				}
			}
		}
	}
}`

var schema = jsonschema.MustCompileString("nbformat.v4.schema.json", ipynbSchema)

var percentRe = regexp.MustCompile(`^#\s*%%(.*)$`)

// Decode parses data according to the extension of name.
func Decode(name string, data []byte) (*Document, error) {
	switch path.Ext(name) {
	case ".ipynb":
		return DecodeIPYNB(data)
	case ".py":
		return DecodePercent(data), nil
	case ".md":
		return DecodeMarkdown(data)
	default:
		return nil, fmt.Errorf("%w: unsupported extension %q", ErrInvalid, path.Ext(name))
	}
}

// DecodeIPYNB parses and validates an nbformat v4 JSON document.
func DecodeIPYNB(data []byte) (*Document, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	doc := New()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return doc, nil
}

// DecodePercent parses a script in the percent format, where "# %%" lines
// open a new cell and "# %% [markdown]" opens a Markdown cell.
func DecodePercent(data []byte) *Document {
	doc := New()
	doc.Metadata["kernelspec"] = map[string]any{
		"name":         "python3",
		"display_name": "Python 3",
		"language":     "python",
	}

	cellType := CellCode
	var lines []string
	flush := func() {
		src := strings.Trim(strings.Join(lines, "\n"), "\n")
		if strings.TrimSpace(src) == "" {
			return
		}
		if cellType == CellMarkdown {
			src = uncomment(src)
		}
		doc.Cells = append(doc.Cells, &Cell{CellType: cellType, Source: MultilineString(src), Metadata: map[string]any{}})
	}

	for _, line := range strings.Split(string(data), "\n") {
		m := percentRe.FindStringSubmatch(line)
		if m == nil {
			lines = append(lines, line)
			continue
		}
		flush()
		lines = nil
		cellType = CellCode
		if tag := strings.TrimSpace(m[1]); strings.Contains(tag, "[markdown]") || strings.Contains(tag, "[md]") {
			cellType = CellMarkdown
		}
	}
	flush()
	return doc
}

func uncomment(src string) string {
	lines := strings.Split(src, "\n")
	for i, l := range lines {
		l = strings.TrimPrefix(l, "#")
		lines[i] = strings.TrimPrefix(l, " ")
	}
	return strings.Join(lines, "\n")
}

type markdownMeta struct {
	Jupyter struct {
		Kernelspec struct {
			Name        string `yaml:"name"`
			Language    string `yaml:"language"`
			DisplayName string `yaml:"display_name"`
		} `yaml:"kernelspec"`
	} `yaml:"jupyter"`
}

// DecodeMarkdown builds a document from a Markdown notebook: fenced blocks in
// the kernel language become code cells, the prose between them Markdown
// cells. A block header such as "python {#fig}" tags the cell.
func DecodeMarkdown(data []byte) (*Document, error) {
	var meta markdownMeta
	body, err := frontmatter.Parse(bytes.NewReader(data), &meta)
	if err != nil {
		return nil, fmt.Errorf("%w: frontmatter: %v", ErrInvalid, err)
	}

	doc := New()
	lang := meta.Jupyter.Kernelspec.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	doc.Metadata["kernelspec"] = map[string]any{
		"name":         meta.Jupyter.Kernelspec.Name,
		"display_name": meta.Jupyter.Kernelspec.DisplayName,
		"language":     lang,
	}

	var prose strings.Builder
	flush := func() {
		if s := strings.TrimSpace(prose.String()); s != "" {
			doc.Cells = append(doc.Cells, &Cell{CellType: CellMarkdown, Source: MultilineString(s), Metadata: map[string]any{}})
		}
		prose.Reset()
	}

	for e := range markdown.Scan(string(body)) {
		cb, ok := e.(*markdown.CodeBlock)
		if !ok || len(cb.Classes) == 0 || strings.TrimPrefix(cb.Classes[0], ".") != lang {
			prose.WriteString(markdown.Literal(e))
			continue
		}
		flush()
		src := markdown.Dedent(cb.Source)
		if cb.Identifier != "" {
			src = "# #" + cb.Identifier + "\n" + src
		}
		doc.Cells = append(doc.Cells, &Cell{CellType: CellCode, Source: MultilineString(src), Metadata: map[string]any{}})
	}
	flush()
	return doc, nil
}
