// Package markdown classifies Markdown text into plain text and notebook
// directives (images and fenced code blocks carrying a URL, an identifier and
// attributes) and resolves the notebook URL each directive targets.
package markdown

import "strings"

// Reserved identifier tokens.
const (
	// IdentifierInherit keeps the URL context but never produces output.
	IdentifierInherit = "."
	// IdentifierSuppress marks a directive that must never produce output.
	IdentifierSuppress = "_"
)

// Element is one of Text, *Image or *CodeBlock.
type Element interface {
	element()
}

// Text is a span of Markdown passed through verbatim.
type Text string

// Directive holds the synchronization metadata shared by images and code blocks.
type Directive struct {
	// Text is the literal Markdown span the directive was parsed from.
	Text       string
	URL        string
	Identifier string
	Classes    []string
	// Attributes is owned by the directive. Reserved keys are popped while
	// the directive flows through the pipeline.
	Attributes *Attributes
	// Source is the inline code of an image or the body of a code block.
	Source string
}

// Parts returns the attribute list tokens: "#id", classes, then key=value
// pairs in declaration order.
func (d *Directive) Parts(withIdentifier bool) []string {
	var parts []string
	if withIdentifier && d.Identifier != "" {
		parts = append(parts, "#"+d.Identifier)
	}
	parts = append(parts, d.Classes...)
	return append(parts, d.Attributes.Parts()...)
}

// Image is an image directive: ![alt](url){#id .class key=value `source`}.
type Image struct {
	Directive
	Alt string
}

// CodeBlock is a fenced code block directive.
type CodeBlock struct {
	Directive
	// Indent is the whitespace before the opening fence.
	Indent string
	// Fence is the opening fence run, e.g. "```" or "~~~~".
	Fence string
}

func (Text) element()       {}
func (*Image) element()     {}
func (*CodeBlock) element() {}

// Literal returns the Markdown text of e as it appeared in the input.
func Literal(e Element) string {
	switch v := e.(type) {
	case Text:
		return string(v)
	case *Image:
		return v.Text
	case *CodeBlock:
		return v.Text
	default:
		return ""
	}
}

// Join concatenates the literal text of elems.
func Join(elems []Element) string {
	var b strings.Builder
	for _, e := range elems {
		b.WriteString(Literal(e))
	}
	return b.String()
}
