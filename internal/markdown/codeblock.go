package markdown

import (
	"strings"

	"github.com/yuin/goldmark/ast"
)

var rustInfoPrefixes = []string{
	"rust",
	"ignore",
	"should_panic",
	"no_run",
	"compile_fail",
	"edition",
	"standalone_crate",
}

// IsRustInfo reports whether a fenced code block info string denotes Rust
// code as rustdoc sees it. An empty info string is Rust.
func IsRustInfo(info string) bool {
	if info == "" {
		return true
	}
	for _, p := range rustInfoPrefixes {
		if strings.HasPrefix(info, p) {
			return true
		}
	}
	return false
}

// codeBlockEdits tags Rust code blocks as `rust`, drops hidden lines and
// turns indented blocks into fenced ones.
func codeBlockEdits(src []byte, doc ast.Node) []Edit {
	var edits []Edit
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.FencedCodeBlock:
			edits = append(edits, fencedEdits(src, n)...)
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock:
			edits = append(edits, indentedEdits(src, n)...)
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return edits
}

func fencedEdits(src []byte, n *ast.FencedCodeBlock) []Edit {
	var info string
	if n.Info != nil {
		info = strings.TrimSpace(string(n.Info.Segment.Value(src)))
	}
	if !IsRustInfo(info) {
		return nil
	}

	var edits []Edit
	lines := n.Lines()
	switch {
	case n.Info != nil:
		if info != "rust" {
			edits = append(edits, Edit{Start: n.Info.Segment.Start, End: n.Info.Segment.Stop, Text: "rust"})
		}
	case lines.Len() > 0:
		// the opening fence is the line before the first content line
		first := lineStart(src, lines.At(0).Start)
		if first > 0 {
			if pos, ok := fenceEnd(src, lineStart(src, first-1), first); ok {
				edits = append(edits, Edit{Start: pos, End: pos, Text: "rust"})
			}
		}
	}

	for i := 0; i < lines.Len(); i++ {
		if e, ok := hiddenLineEdit(src, lines.At(i).Start, lines.At(i).Stop); ok {
			edits = append(edits, e)
		}
	}
	return edits
}

// fenceEnd returns the offset just past the backtick or tilde run on the
// line [start, stop).
func fenceEnd(src []byte, start, stop int) (int, bool) {
	i := start
	for i < stop && src[i] != '`' && src[i] != '~' {
		i++
	}
	if i == stop {
		return 0, false
	}
	c := src[i]
	for i < stop && src[i] == c {
		i++
	}
	return i, true
}

func indentedEdits(src []byte, n *ast.CodeBlock) []Edit {
	lines := n.Lines()
	if lines.Len() == 0 {
		return nil
	}

	first := lines.At(0)
	ls := lineStart(src, first.Start)
	prefix := string(src[ls:indentStart(src, ls, first.Start)])

	edits := []Edit{{Start: ls, End: ls, Text: prefix + "```rust\n"}}
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		if e, ok := hiddenLineEdit(src, seg.Start, seg.Stop); ok {
			edits = append(edits, e)
			continue
		}
		if from := indentStart(src, lineStart(src, seg.Start), seg.Start); from < seg.Start {
			edits = append(edits, Edit{Start: from, End: seg.Start})
		}
	}

	last := lines.At(lines.Len() - 1)
	closing := prefix + "```\n"
	if last.Stop == 0 || src[last.Stop-1] != '\n' {
		closing = "\n" + prefix + "```"
	}
	edits = append(edits, Edit{Start: last.Stop, End: last.Stop, Text: closing})
	return edits
}

// indentStart walks back over at most four spaces or tabs before pos,
// stopping at the start of the line.
func indentStart(src []byte, ls, pos int) int {
	i := pos
	for i > ls && pos-i < 4 && (src[i-1] == ' ' || src[i-1] == '\t') {
		i--
	}
	return i
}

// hiddenLineEdit returns the edit for a doctest line: `# ` lines are
// removed whole and `##` loses one `#`.
func hiddenLineEdit(src []byte, start, stop int) (Edit, bool) {
	content := src[start:trimNewline(src, start, stop)]
	trimmed := strings.TrimLeft(string(content), " \t")
	at := start + len(content) - len(trimmed)

	switch {
	case strings.HasPrefix(trimmed, "##"):
		return Edit{Start: at, End: at + 1}, true
	case trimmed == "#" || strings.HasPrefix(trimmed, "# "):
		return Edit{Start: lineStart(src, start), End: lineEnd(src, start)}, true
	}
	return Edit{}, false
}
