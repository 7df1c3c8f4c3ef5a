package markdown

import (
	"strings"
	"unicode"
)

// header is the parsed attribute section of a directive.
type header struct {
	url        string
	identifier string
	source     string
	classes    []string
	attrs      *Attributes
}

// parseHeader interprets the tokens of an attribute section such as
// `python {a.py#id .c key="a b" `+"`x=1`"+`}`. Braces act as separators.
func parseHeader(s string) header {
	h := header{attrs: NewAttributes()}
	seenIdentifier := false

	for _, tok := range SplitTokens(s) {
		switch {
		case strings.HasPrefix(tok, "`"):
			h.source = strings.Trim(tok, "`")

		case isKeyValue(tok):
			i := strings.IndexByte(tok, '=')
			h.attrs.Set(tok[:i], Unquote(tok[i+1:]))

		case strings.Contains(tok, "#") && !seenIdentifier:
			i := strings.IndexByte(tok, '#')
			h.url, h.identifier = tok[:i], tok[i+1:]
			seenIdentifier = true

		default:
			h.classes = append(h.classes, tok)
		}
	}
	return h
}

// isKeyValue reports whether tok has the form key=value with a bare key.
func isKeyValue(tok string) bool {
	i := strings.IndexByte(tok, '=')
	if i <= 0 {
		return false
	}
	return !strings.ContainsAny(tok[:i], "#\"'`")
}

// Unquote strips one pair of matching single or double quotes from v.
func Unquote(v string) string {
	if len(v) >= 2 {
		if q := v[0]; (q == '"' || q == '\'') && v[len(v)-1] == q {
			return v[1 : len(v)-1]
		}
	}
	return v
}

// SplitTokens splits s on whitespace and braces, keeping quoted and
// backtick-delimited runs intact (quotes included).
func SplitTokens(s string) []string {
	var (
		out   []string
		cur   strings.Builder
		quote rune
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case quote != 0:
			cur.WriteRune(r)
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'' || r == '`':
			quote = r
			cur.WriteRune(r)
		case r == '{' || r == '}' || unicode.IsSpace(r):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}
