package markdown

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark/ast"
)

var (
	// ErrSubsectionsOverlap is returned when a subsection starts before the
	// previous one ended.
	ErrSubsectionsOverlap = errors.New("subsections must be disjoint")

	// ErrUnpairedSubsection is returned for a start marker without end or
	// an end marker without start.
	ErrUnpairedSubsection = errors.New("unpaired subsection marker")
)

// Section is a region delimited by `<!-- name start -->` and
// `<!-- name end -->`. Start and End include the markers, the content
// lies between ContentStart and ContentEnd.
type Section struct {
	Name         string
	Start        int
	End          int
	ContentStart int
	ContentEnd   int
}

// Content returns the text between the markers.
func (s Section) Content(src string) string {
	return src[s.ContentStart:s.ContentEnd]
}

type comment struct {
	start int
	end   int
	body  string
}

// comments lists the HTML comments of a document. Comments inside code
// blocks or code spans are not HTML and are ignored.
func comments(src []byte) []comment {
	doc, _ := parse(src)

	var out []comment
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.HTMLBlock:
			lines := n.Lines()
			start, stop := -1, -1
			if lines.Len() > 0 {
				start, stop = lines.At(0).Start, lines.At(lines.Len()-1).Stop
			}
			if n.HasClosure() {
				if start < 0 {
					start = n.ClosureLine.Start
				}
				stop = n.ClosureLine.Stop
			}
			if start >= 0 {
				out = append(out, scanComments(src, start, stop)...)
			}
		case *ast.RawHTML:
			if n.Segments.Len() > 0 {
				out = append(out, scanComments(src, n.Segments.At(0).Start, n.Segments.At(n.Segments.Len()-1).Stop)...)
			}
		}
		return ast.WalkContinue, nil
	})
	return out
}

func scanComments(src []byte, start, stop int) []comment {
	var out []comment
	for i := start; i < stop; {
		j := bytes.Index(src[i:stop], []byte("<!--"))
		if j < 0 {
			break
		}
		s := i + j
		k := bytes.Index(src[s+4:stop], []byte("-->"))
		if k < 0 {
			break
		}
		e := s + 4 + k + 3
		out = append(out, comment{start: s, end: e, body: strings.TrimSpace(string(src[s+4 : e-3]))})
		i = e
	}
	return out
}

// FindSection returns the section called name. When several complete
// pairs exist the last one wins.
func FindSection(src, name string) (Section, bool) {
	var (
		open  *comment
		found Section
		ok    bool
	)
	for _, c := range comments([]byte(src)) {
		switch c.body {
		case name + " start":
			c := c
			open = &c
		case name + " end":
			if open == nil {
				continue
			}
			found = Section{Name: name, Start: open.start, End: c.end, ContentStart: open.end, ContentEnd: c.start}
			ok = true
			open = nil
		}
	}
	return found, ok
}

// FindSubsections returns the subsections `<!-- name sub start -->` ...
// `<!-- name sub end -->` in document order.
func FindSubsections(src, name string) ([]Section, error) {
	var (
		out  []Section
		open *Section
	)
	prefix := name + " "
	for _, c := range comments([]byte(src)) {
		rest, ok := strings.CutPrefix(c.body, prefix)
		if !ok {
			continue
		}

		if sub, ok := strings.CutSuffix(rest, " start"); ok && sub != "" {
			if open != nil {
				return nil, fmt.Errorf("%w: %q starts inside %q", ErrSubsectionsOverlap, sub, open.Name)
			}
			open = &Section{Name: sub, Start: c.start, ContentStart: c.end}
			continue
		}

		if sub, ok := strings.CutSuffix(rest, " end"); ok && sub != "" {
			switch {
			case open == nil:
				return nil, fmt.Errorf("%w: end of %q without start", ErrUnpairedSubsection, sub)
			case open.Name != sub:
				return nil, fmt.Errorf("%w: %q ends inside %q", ErrSubsectionsOverlap, sub, open.Name)
			}
			open.End, open.ContentEnd = c.end, c.start
			out = append(out, *open)
			open = nil
		}
	}
	if open != nil {
		return nil, fmt.Errorf("%w: start of %q without end", ErrUnpairedSubsection, open.Name)
	}
	return out, nil
}

// Splice replaces the content of s with content, leaving the markers and
// everything else untouched.
func Splice(src string, s Section, content string) string {
	return src[:s.ContentStart] + content + src[s.ContentEnd:]
}

// refDefPattern matches a single-line link reference definition.
var refDefPattern = regexp.MustCompile(`^ {0,3}\[((?:[^\]\\]|\\.)+)\]:[ \t]*(<[^>\n]*>|\S+)(?:[ \t]+(?:"[^"\n]*"|'[^'\n]*'|\([^)\n]*\)))?[ \t]*\r?$`)

type definition struct {
	lineStart int
	lineEnd   int // past the newline
	label     string
	destStart int
	destEnd   int
}

// dest returns the destination without angle brackets.
func (d definition) dest(src []byte) string {
	return strings.TrimSuffix(strings.TrimPrefix(string(src[d.destStart:d.destEnd]), "<"), ">")
}

// definitions finds link reference definition lines. Lines that belong to
// a paragraph, heading, code block or HTML block are skipped.
func definitions(src []byte, doc ast.Node) []definition {
	covered := blockRanges(doc)

	var out []definition
	for pos := 0; pos < len(src); {
		end := lineEnd(src, pos)
		line := src[pos:trimNewline(src, pos, end)]
		if m := refDefPattern.FindSubmatchIndex(line); m != nil && !inRanges(covered, pos+m[2]) {
			out = append(out, definition{
				lineStart: pos,
				lineEnd:   end,
				label:     string(line[m[2]:m[3]]),
				destStart: pos + m[4],
				destEnd:   pos + m[5],
			})
		}
		pos = end
	}
	return out
}

// SplitDefinitions moves link reference definitions out of src. It returns
// the remaining text and the definition lines in document order.
func SplitDefinitions(src string) (body, defs string) {
	b := []byte(src)
	doc, _ := parse(b)

	var edits []Edit
	var d strings.Builder
	for _, def := range definitions(b, doc) {
		line := src[def.lineStart:def.lineEnd]
		d.WriteString(line)
		if !strings.HasSuffix(line, "\n") {
			d.WriteByte('\n')
		}
		edits = append(edits, Edit{Start: def.lineStart, End: def.lineEnd})
	}

	body, err := Apply(src, edits)
	if err != nil {
		// definition lines never overlap
		return src, ""
	}
	return body, d.String()
}
