// Package rustsrc reads and rewrites the crate documentation at the top of
// a `lib.rs`.
//
// Only `//!` lines and `#![doc = "..."]` attributes are understood. Other
// inner attributes, blank lines and plain comments may sit between them.
package rustsrc

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/jcdickinson/insertdocs/internal/markdown"
)

var (
	// ErrSameLine is returned when both markers of a section are in one
	// doc comment line or attribute.
	ErrSameLine = errors.New("section start and end in the same doc attribute is not yet supported")

	// ErrBlockComment is returned for `/*! */` crate docs.
	ErrBlockComment = errors.New("block doc comments are not supported")
)

type fragment struct {
	// start and end delimit the comment or attribute, without the newline
	start, end int
	doc        string
	sugared    bool
	indent     int
}

// Docs is the crate documentation of one source file.
type Docs struct {
	src   string
	frags []fragment

	// Markdown is the unindented documentation.
	Markdown string

	// lineStarts[i] is the offset of markdown line i, lineFrags[i] the
	// fragment it came from.
	lineStarts []int
	lineFrags  []int
}

var docAttrPattern = regexp.MustCompile(`(?s)^#!\[\s*doc\s*=\s*(.*?)\s*\]$`)

// Parse collects the leading doc comments of src.
func Parse(src string) (*Docs, error) {
	frags, err := scan(src)
	if err != nil {
		return nil, err
	}
	unindent(frags)

	d := &Docs{src: src, frags: frags}
	var b strings.Builder
	for i, f := range frags {
		for _, line := range strings.Split(f.doc, "\n") {
			if !isBlank(line) {
				line = line[f.indent:]
			}
			d.lineStarts = append(d.lineStarts, b.Len())
			d.lineFrags = append(d.lineFrags, i)
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	d.Markdown = b.String()
	return d, nil
}

func scan(src string) ([]fragment, error) {
	var frags []fragment
	for pos := 0; pos < len(src); {
		end := strings.IndexByte(src[pos:], '\n')
		next := len(src)
		if end < 0 {
			end = len(src)
		} else {
			end += pos
			next = end + 1
		}
		line := strings.TrimSuffix(src[pos:end], "\r")
		trimmed := strings.TrimLeft(line, " \t")
		start := pos + len(line) - len(trimmed)

		switch {
		case strings.HasPrefix(trimmed, "//!"):
			frags = append(frags, fragment{
				start:   start,
				end:     pos + len(line),
				doc:     trimmed[3:],
				sugared: true,
			})
		case strings.HasPrefix(trimmed, "#!["):
			attrEnd, ok := attributeEnd(src, start)
			if !ok {
				return nil, fmt.Errorf("parse inner attribute at offset %d: unterminated", start)
			}
			// values other than string literals, like include_str!, are skipped
			if m := docAttrPattern.FindStringSubmatch(src[start:attrEnd]); m != nil {
				if doc, err := unquote(m[1]); err == nil {
					frags = append(frags, fragment{start: start, end: attrEnd, doc: doc})
				}
			}
			next = lineEndAfter(src, attrEnd)
		case strings.HasPrefix(trimmed, "/*!"):
			return nil, ErrBlockComment
		case strings.HasPrefix(trimmed, "/*"):
			closeAt := strings.Index(src[start:], "*/")
			if closeAt < 0 {
				return frags, nil
			}
			next = lineEndAfter(src, start+closeAt+2)
		case strings.HasPrefix(trimmed, "///"):
			return frags, nil
		case strings.HasPrefix(trimmed, "//"), trimmed == "":
		case pos == 0 && strings.HasPrefix(trimmed, "#!"):
			// shebang
		default:
			return frags, nil
		}
		pos = next
	}
	return frags, nil
}

func lineEndAfter(src string, pos int) int {
	if i := strings.IndexByte(src[pos:], '\n'); i >= 0 {
		return pos + i + 1
	}
	return len(src)
}

// attributeEnd returns the offset just past the `]` closing the attribute
// that starts at pos.
func attributeEnd(src string, pos int) (int, bool) {
	depth := 0
	for i := pos; i < len(src); i++ {
		switch src[i] {
		case '"':
			end, ok := stringEnd(src, i)
			if !ok {
				return 0, false
			}
			i = end - 1
		case 'r':
			if end, ok := rawStringEnd(src, i); ok {
				i = end - 1
			}
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

func stringEnd(src string, pos int) (int, bool) {
	for i := pos + 1; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++
		case '"':
			return i + 1, true
		}
	}
	return 0, false
}

// rawStringEnd matches r"..." and r#"..."# at pos.
func rawStringEnd(src string, pos int) (int, bool) {
	if pos > 0 && (isIdentByte(src[pos-1])) {
		return 0, false
	}
	i := pos + 1
	hashes := 0
	for i < len(src) && src[i] == '#' {
		hashes++
		i++
	}
	if i >= len(src) || src[i] != '"' {
		return 0, false
	}
	closer := `"` + strings.Repeat("#", hashes)
	end := strings.Index(src[i+1:], closer)
	if end < 0 {
		return 0, false
	}
	return i + 1 + end + len(closer), true
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// unindent removes the common indentation of all fragments. A mix of
// sugared and attribute docs measures from the sugared ones, whose first
// space is part of the comment syntax.
func unindent(frags []fragment) {
	add := 0
	mixed, sugared := false, false
	for i, f := range frags {
		sugared = sugared || f.sugared
		if i > 0 && f.sugared != frags[i-1].sugared {
			mixed = true
		}
	}
	if mixed && sugared {
		add = 1
	}

	minIndent := -1
	for _, f := range frags {
		for _, line := range strings.Split(f.doc, "\n") {
			if isBlank(line) {
				continue
			}
			n := len(line) - len(strings.TrimLeft(line, " \t"))
			if !f.sugared {
				n += add
			}
			if minIndent < 0 || n < minIndent {
				minIndent = n
			}
		}
	}
	if minIndent < 0 {
		return
	}

	for i := range frags {
		frags[i].indent = minIndent
		if !frags[i].sugared && minIndent > 0 {
			frags[i].indent = minIndent - add
		}
	}
}

func isBlank(s string) bool {
	return strings.TrimFunc(s, unicode.IsSpace) == ""
}

// Section finds a marked section in the documentation.
func (d *Docs) Section(name string) (markdown.Section, bool) {
	return markdown.FindSection(d.Markdown, name)
}

func (d *Docs) fragmentAt(pos int) int {
	i := sort.Search(len(d.lineStarts), func(i int) bool { return d.lineStarts[i] > pos }) - 1
	if i < 0 {
		i = 0
	}
	return d.lineFrags[i]
}

// Replace returns the source with every doc line between the two marker
// lines of s replaced by content written as `//!` comments. Everything
// outside that range is kept byte for byte. New lines take the indentation
// of the start marker line and the line ending of the file.
func (d *Docs) Replace(s markdown.Section, content string) (string, error) {
	startFrag := d.frags[d.fragmentAt(s.ContentStart)]
	endFrag := d.frags[d.fragmentAt(s.ContentEnd)]
	if startFrag.start == endFrag.start {
		return "", ErrSameLine
	}

	eol := "\n"
	if strings.HasPrefix(d.src[startFrag.end:], "\r\n") {
		eol = "\r\n"
	}
	indent := d.src[lineStart(d.src, startFrag.start):startFrag.start]
	cut := lineStart(d.src, endFrag.start)

	var b strings.Builder
	b.WriteString(eol)
	for _, line := range contentLines(content) {
		b.WriteString(indent)
		b.WriteString("//!")
		if !isBlank(line) {
			b.WriteByte(' ')
			b.WriteString(line)
		}
		b.WriteString(eol)
	}
	return d.src[:startFrag.end] + b.String() + d.src[cut:], nil
}

func lineStart(src string, pos int) int {
	return strings.LastIndexByte(src[:pos], '\n') + 1
}

// contentLines splits s into lines the way a text file is read: a final
// newline does not start another line.
func contentLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
