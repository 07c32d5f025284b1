// Package markdown rewrites markdown documents in place. Documents are parsed
// with goldmark only to locate byte ranges; every change is an Edit, so
// anything not edited is copied verbatim.
package markdown

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// placeholderDest is the destination of references that have no definition.
const placeholderDest = "\x00unresolved"

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// refContext makes every non-blank bracketed label parse as a reference
// link so shortcut, collapsed and full references can be located even
// without a definition.
type refContext struct {
	parser.Context
}

func (c *refContext) Reference(label string) (parser.Reference, bool) {
	if ref, ok := c.Context.Reference(label); ok {
		return ref, true
	}
	if strings.TrimSpace(label) == "" {
		return nil, false
	}
	return parser.NewReference([]byte(label), []byte(placeholderDest), nil), true
}

func parse(src []byte) (ast.Node, *refContext) {
	pc := &refContext{Context: parser.NewContext()}
	doc := md.Parser().Parse(text.NewReader(src), parser.WithContext(pc))
	return doc, pc
}

// normalizeLabel matches labels the way link reference definitions do:
// case-insensitively with runs of whitespace collapsed.
func normalizeLabel(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(label), " "))
}

// lineStart returns the offset of the first byte of the line containing pos.
func lineStart(src []byte, pos int) int {
	for pos > 0 && src[pos-1] != '\n' {
		pos--
	}
	return pos
}

// lineEnd returns the offset just past the newline ending the line
// containing pos, or len(src).
func lineEnd(src []byte, pos int) int {
	for pos < len(src) {
		if src[pos] == '\n' {
			return pos + 1
		}
		pos++
	}
	return len(src)
}

// trimNewline drops a trailing "\n" or "\r\n" from the range [start, stop).
func trimNewline(src []byte, start, stop int) int {
	if stop > start && src[stop-1] == '\n' {
		stop--
	}
	if stop > start && src[stop-1] == '\r' {
		stop--
	}
	return stop
}

// textBounds returns the source range covered by the text of n's
// descendants, or ok == false when n has no text with a segment.
func textBounds(n ast.Node) (start, stop int, ok bool) {
	start, stop = -1, -1
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		var s, e int
		switch c := c.(type) {
		case *ast.Text:
			s, e = c.Segment.Start, c.Segment.Stop
		case *ast.RawHTML:
			if c.Segments.Len() == 0 {
				return ast.WalkContinue, nil
			}
			s, e = c.Segments.At(0).Start, c.Segments.At(c.Segments.Len()-1).Stop
		default:
			return ast.WalkContinue, nil
		}
		if start < 0 || s < start {
			start = s
		}
		if e > stop {
			stop = e
		}
		return ast.WalkContinue, nil
	})
	return start, stop, start >= 0
}

// blockRanges lists the source ranges of the lines of every leaf block.
// Text outside these ranges is markup or link reference definitions.
func blockRanges(doc ast.Node) [][2]int {
	var out [][2]int
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Type() != ast.TypeBlock {
			return ast.WalkContinue, nil
		}
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			out = append(out, [2]int{seg.Start, seg.Stop})
		}
		if h, ok := n.(*ast.HTMLBlock); ok && h.HasClosure() {
			out = append(out, [2]int{h.ClosureLine.Start, h.ClosureLine.Stop})
		}
		return ast.WalkContinue, nil
	})
	return out
}

func inRanges(ranges [][2]int, pos int) bool {
	for _, r := range ranges {
		if pos >= r[0] && pos < r[1] {
			return true
		}
	}
	return false
}
