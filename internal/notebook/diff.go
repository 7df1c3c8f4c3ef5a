package notebook

import (
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"
)

// Diff returns a unified diff of the cell sources of a and b, one hunk line
// per source line, with cells separated by a "# ---- <type>" marker line.
func Diff(aName, bName string, a, b *Document) string {
	u := difflib.UnifiedDiff{
		A:        sourceLines(a),
		B:        sourceLines(b),
		FromFile: aName,
		ToFile:   bName,
		Context:  2,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return ""
	}
	return s
}

func sourceLines(doc *Document) []string {
	if doc == nil {
		return nil
	}
	var lines []string
	for _, c := range doc.Cells {
		lines = append(lines, "# ---- "+c.CellType+"\n")
		for _, l := range strings.Split(string(c.Source), "\n") {
			lines = append(lines, l+"\n")
		}
	}
	return lines
}
