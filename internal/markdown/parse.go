package markdown

import (
	"iter"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// TabbedSentinel is the source attribute value that expands a code block into
// a pair of "Markdown" / "HTML" content tabs.
const TabbedSentinel = "tabbed-nbsync"

// SelfURL is the synthetic URL of a notebook built from the page itself.
const SelfURL = ".md"

// SupportedExtensions lists the URL suffixes that name a notebook.
var SupportedExtensions = []string{".ipynb", ".md", ".py"}

// inlineNamespace scopes the identifiers derived for inline sources.
var inlineNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("nbsync:inline-source"))

// inlineIdentifier names the n-th inline source with the given URL and code.
// The name is stable across passes so that an unchanged page builds an equal
// notebook.
func inlineIdentifier(url, source string, n int) string {
	return uuid.NewSHA1(inlineNamespace, []byte(url+"\x00"+source+"\x00"+strconv.Itoa(n))).String()
}

// Parse classifies text into elements with resolved URLs.
func Parse(text string) iter.Seq[Element] {
	return SplitImages(Resolve(ExpandTabs(Scan(text))))
}

// ExpandTabs replaces every code block whose source attribute is the tabbed
// sentinel with a tab header and the scanned elements of its body.
func ExpandTabs(elems iter.Seq[Element]) iter.Seq[Element] {
	return func(yield func(Element) bool) {
		for e := range elems {
			cb, ok := e.(*CodeBlock)
			if !ok {
				if !yield(e) {
					return
				}
				continue
			}
			if v, _ := cb.Attributes.Get("source"); v != TabbedSentinel {
				if !yield(cb) {
					return
				}
				continue
			}
			for t := range expandTabs(cb) {
				if !yield(t) {
					return
				}
			}
		}
	}
}

func expandTabs(cb *CodeBlock) iter.Seq[Element] {
	return func(yield func(Element) bool) {
		md := strings.Replace(cb.Text, `source="`+TabbedSentinel+`"`, "", 1)
		md = Indent(md, "    ")
		if !yield(Text(`=== "Markdown"` + "\n\n" + md + "\n\n" + `=== "HTML"` + "\n\n")) {
			return
		}
		for e := range Scan(Indent(cb.Source, "    ")) {
			if !yield(e) {
				return
			}
		}
	}
}

// HasSupportedExtension reports whether url names a notebook.
func HasSupportedExtension(url string) bool {
	for _, ext := range SupportedExtensions {
		if strings.HasSuffix(url, ext) {
			return true
		}
	}
	return false
}

// SetURL resolves d against the current URL. It returns the new current URL
// and false when d cannot be synchronized and must degrade to literal text.
func SetURL(d *Directive, current string) (string, bool) {
	if (d.URL == "" || d.URL == IdentifierInherit) && current != "" {
		d.URL = current
		return current, true
	}
	if HasSupportedExtension(d.URL) {
		return d.URL, true
	}
	return current, false
}

// Resolve propagates the current notebook URL left to right. A code block
// without any URL is documentation only and degrades to its literal text.
func Resolve(elems iter.Seq[Element]) iter.Seq[Element] {
	return func(yield func(Element) bool) {
		current := ""
		for e := range elems {
			var d *Directive
			switch v := e.(type) {
			case *Image:
				d = &v.Directive
			case *CodeBlock:
				if v.URL == "" {
					e = Text(v.Text)
				} else {
					d = &v.Directive
				}
			}
			if d != nil {
				var ok bool
				if current, ok = SetURL(d, current); !ok {
					e = Text(d.Text)
				}
			}
			if !yield(e) {
				return
			}
		}
	}
}

// SplitImages emits a synthesized code block ahead of every image carrying
// inline source, and degrades images with neither source nor identifier.
func SplitImages(elems iter.Seq[Element]) iter.Seq[Element] {
	return func(yield func(Element) bool) {
		seen := make(map[string]int)
		for e := range elems {
			img, ok := e.(*Image)
			if !ok {
				if !yield(e) {
					return
				}
				continue
			}
			switch {
			case img.Source != "":
				if img.Identifier == "" {
					key := img.URL + "\x00" + img.Source
					img.Identifier = inlineIdentifier(img.URL, img.Source, seen[key])
					seen[key]++
				}
				cb := &CodeBlock{Directive: Directive{
					Identifier: img.Identifier,
					Attributes: NewAttributes(),
					Source:     img.Source,
					URL:        img.URL,
				}}
				if !yield(cb) || !yield(img) {
					return
				}
			case img.Identifier != "":
				if !yield(img) {
					return
				}
			default:
				if !yield(Text(img.Text)) {
					return
				}
			}
		}
	}
}
