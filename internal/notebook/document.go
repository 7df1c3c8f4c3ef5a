// Package notebook models nbformat v4 documents and provides the inspection,
// decoding and execution capabilities the synchronizer relies on.
package notebook

import (
	"encoding/json"
	"strings"
)

// Cell types.
const (
	CellCode     = "code"
	CellMarkdown = "markdown"
	CellRaw      = "raw"
)

// MultilineString decodes the nbformat "multiline string" shape: either a
// JSON string or an array of line strings.
type MultilineString string

// UnmarshalJSON implements json.Unmarshaler.
func (m *MultilineString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*m = MultilineString(s)
		return nil
	}
	var lines []string
	if err := json.Unmarshal(data, &lines); err != nil {
		return err
	}
	*m = MultilineString(strings.Join(lines, ""))
	return nil
}

// Document is an nbformat v4 notebook.
type Document struct {
	Cells         []*Cell        `json:"cells"`
	Metadata      map[string]any `json:"metadata"`
	NBFormat      int            `json:"nbformat"`
	NBFormatMinor int            `json:"nbformat_minor"`
}

// Cell is one notebook cell.
type Cell struct {
	ID             string          `json:"id,omitempty"`
	CellType       string          `json:"cell_type"`
	Source         MultilineString `json:"source"`
	Metadata       map[string]any  `json:"metadata"`
	Outputs        []*Output       `json:"outputs,omitempty"`
	ExecutionCount *int            `json:"execution_count,omitempty"`
}

// MarshalJSON writes code cells with the outputs and execution_count keys
// nbformat requires even when empty.
func (c *Cell) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"cell_type": c.CellType,
		"source":    string(c.Source),
		"metadata":  nonNilMap(c.Metadata),
	}
	if c.ID != "" {
		m["id"] = c.ID
	}
	if c.CellType == CellCode {
		outputs := c.Outputs
		if outputs == nil {
			outputs = []*Output{}
		}
		m["outputs"] = outputs
		m["execution_count"] = c.ExecutionCount
	}
	return json.Marshal(m)
}

// Output is one output of a code cell.
type Output struct {
	OutputType     string                     `json:"output_type"`
	Name           string                     `json:"name,omitempty"`
	Text           MultilineString            `json:"text,omitempty"`
	Data           map[string]json.RawMessage `json:"data,omitempty"`
	Metadata       map[string]any             `json:"metadata,omitempty"`
	ExecutionCount *int                       `json:"execution_count,omitempty"`
	Ename          string                     `json:"ename,omitempty"`
	Evalue         string                     `json:"evalue,omitempty"`
	Traceback      []string                   `json:"traceback,omitempty"`
}

// Output types.
const (
	OutputStream        = "stream"
	OutputDisplayData   = "display_data"
	OutputExecuteResult = "execute_result"
	OutputError         = "error"
)

// New returns an empty notebook document.
func New() *Document {
	return &Document{
		Cells:         []*Cell{},
		Metadata:      map[string]any{},
		NBFormat:      4,
		NBFormatMinor: 5,
	}
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
