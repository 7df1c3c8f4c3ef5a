package markdown

import (
	"iter"
	"regexp"
	"strings"
)

var (
	fenceRe = regexp.MustCompile("^([ \t]*)(`{3,}|~{3,})(.*)$")
	imageRe = regexp.MustCompile("!\\[([^\\]]*)\\]\\(([^)]*)\\)\\{((?:[^}`]|`[^`]*`)*)\\}")
)

// Scan splits text into Text, *Image and *CodeBlock elements without any
// interpretation of URLs or identifiers. Concatenating the literal text of
// the yielded elements reproduces text.
func Scan(text string) iter.Seq[Element] {
	return func(yield func(Element) bool) {
		pending := 0
		offset := 0
		for offset < len(text) {
			end := lineEnd(text, offset)
			m := fenceRe.FindStringSubmatch(text[offset:end])
			if m == nil || (m[2][0] == '`' && strings.Contains(m[3], "`")) {
				offset = end + 1
				continue
			}
			closeStart, closeEnd, ok := closingFence(text, end, m[1], m[2])
			if !ok {
				offset = end + 1
				continue
			}
			if !scanInline(text[pending:offset], yield) {
				return
			}
			body := ""
			if closeStart > end+1 {
				body = text[end+1 : closeStart-1]
			}
			if !yield(newCodeBlock(text[offset:closeEnd], m[1], m[2], m[3], body)) {
				return
			}
			pending, offset = closeEnd, closeEnd
		}
		scanInline(text[pending:], yield)
	}
}

func lineEnd(text string, from int) int {
	if i := strings.IndexByte(text[from:], '\n'); i >= 0 {
		return from + i
	}
	return len(text)
}

// closingFence finds the line after from that closes a fence opened with
// indent+fence. It returns the start and end offsets of that line.
func closingFence(text string, from int, indent, fence string) (int, int, bool) {
	want := indent + fence
	for start := from + 1; start <= len(text) && from < len(text); {
		end := lineEnd(text, start)
		if strings.TrimRight(text[start:end], " \t\r") == want {
			return start, end, true
		}
		if end >= len(text) {
			break
		}
		start = end + 1
	}
	return 0, 0, false
}

func newCodeBlock(literal, indent, fence, info, body string) *CodeBlock {
	h := parseHeader(info)
	return &CodeBlock{
		Directive: Directive{
			Text:       literal,
			URL:        h.url,
			Identifier: h.identifier,
			Classes:    h.classes,
			Attributes: h.attrs,
			Source:     body,
		},
		Indent: indent,
		Fence:  fence,
	}
}

// scanInline yields the image directives found in a span of non-code text and
// the text around them.
func scanInline(span string, yield func(Element) bool) bool {
	last := 0
	for _, loc := range imageRe.FindAllStringSubmatchIndex(span, -1) {
		if loc[0] > last && !yield(Text(span[last:loc[0]])) {
			return false
		}
		h := parseHeader(span[loc[6]:loc[7]])
		img := &Image{
			Directive: Directive{
				Text:       span[loc[0]:loc[1]],
				URL:        strings.TrimSpace(span[loc[4]:loc[5]]),
				Identifier: h.identifier,
				Classes:    h.classes,
				Attributes: h.attrs,
				Source:     h.source,
			},
			Alt: strings.TrimSpace(span[loc[2]:loc[3]]),
		}
		if !yield(img) {
			return false
		}
		last = loc[1]
	}
	if last < len(span) {
		return yield(Text(span[last:]))
	}
	return true
}
