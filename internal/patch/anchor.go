package patch

import "regexp"

// Span is a half-open [Start, End) byte range inside a file's text.
type Span struct {
	Start int
	End   int
}

// Anchor locates a structural landmark in source text - a function
// signature, a struct field, a build directive. Anchors only find insertion
// points; the mutation that consumes the span lives in the transformation.
type Anchor struct {
	name string
	re   *regexp.Regexp
}

// NewAnchor compiles an anchor. The pattern is a package-internal constant,
// so compilation failure is a programming error and panics at init.
func NewAnchor(name, pattern string) Anchor {
	return Anchor{name: name, re: regexp.MustCompile(pattern)}
}

// Name returns the anchor's diagnostic name.
func (a Anchor) Name() string {
	return a.name
}

// Locate returns the span of the first match. A missing anchor is not an
// error: it means the file's current shape does not take this fix.
func (a Anchor) Locate(text string) (Span, bool) {
	loc := a.re.FindStringIndex(text)
	if loc == nil {
		return Span{}, false
	}
	return Span{Start: loc[0], End: loc[1]}, true
}

// Found reports whether the anchor matches anywhere in text.
func (a Anchor) Found(text string) bool {
	return a.re.MatchString(text)
}

// insertAfter splices insert directly after the span.
func insertAfter(text string, span Span, insert string) string {
	return text[:span.End] + insert + text[span.End:]
}

// replaceSpan substitutes the span's text with repl.
func replaceSpan(text string, span Span, repl string) string {
	return text[:span.Start] + repl + text[span.End:]
}
