package markdown

import (
	"strings"

	"github.com/yuin/goldmark/ast"
)

// LinkResolver maps intra-doc link text to a URL. It returns an empty href
// and a nil error for text that is not an intra-doc link; such links are
// left alone.
type LinkResolver interface {
	ResolveLink(text string) (href string, err error)
}

// Options control Rewrite.
type Options struct {
	// ShiftHeadings is added to the level of every ATX heading. The result
	// is clamped to 1..6.
	ShiftHeadings int
	// Resolver resolves link destinations and reference labels. Links are
	// not touched when it is nil.
	Resolver LinkResolver
}

// LinkStyle is the syntax a link was written in.
type LinkStyle int

const (
	StyleInline LinkStyle = iota
	StyleFull
	StyleCollapsed
	StyleShortcut
	StyleDefinition
)

func (s LinkStyle) String() string {
	switch s {
	case StyleInline:
		return "inline"
	case StyleFull:
		return "full"
	case StyleCollapsed:
		return "collapsed"
	case StyleShortcut:
		return "shortcut"
	case StyleDefinition:
		return "definition"
	}
	return "unknown"
}

// LinkReport describes one link seen by Rewrite.
type LinkReport struct {
	Style LinkStyle
	// Label is the link text or reference label as written.
	Label string
	// Dest is the text that was resolved.
	Dest string
	// Href is the resolved URL. It is empty for links that are not
	// intra-doc links and for failures.
	Href string
	Err  error
}

// Resolved reports whether the link got a URL.
func (r LinkReport) Resolved() bool { return r.Href != "" }

// Result is the rewritten document.
type Result struct {
	Text  string
	Links []LinkReport
}

// Unresolved returns the reports of links that failed to resolve.
func (r *Result) Unresolved() []LinkReport {
	var out []LinkReport
	for _, l := range r.Links {
		if l.Err != nil {
			out = append(out, l)
		}
	}
	return out
}

type rewriter struct {
	src   []byte
	opts  Options
	cache map[string]LinkReport

	edits   []Edit
	reports []LinkReport

	manual  map[string]bool
	added   map[string]bool
	newDefs []string
}

// Rewrite resolves intra-doc links, cleans Rust code blocks and shifts
// headings. Everything not rewritten is copied byte for byte.
func Rewrite(src string, opts Options) (*Result, error) {
	b := []byte(src)
	doc, _ := parse(b)

	rw := &rewriter{
		src:    b,
		opts:   opts,
		cache:  make(map[string]LinkReport),
		manual: make(map[string]bool),
		added:  make(map[string]bool),
	}

	if opts.Resolver != nil {
		rw.definitions(doc)
		rw.links(doc)
	}
	if opts.ShiftHeadings != 0 {
		rw.edits = append(rw.edits, headingEdits(b, doc, opts.ShiftHeadings)...)
	}
	rw.edits = append(rw.edits, codeBlockEdits(b, doc)...)
	if len(rw.newDefs) > 0 {
		rw.edits = append(rw.edits, Edit{Start: len(src), End: len(src), Text: definitionBlock(src, rw.newDefs)})
	}

	out, err := Apply(src, rw.edits)
	if err != nil {
		return nil, err
	}
	return &Result{Text: out, Links: rw.reports}, nil
}

func (rw *rewriter) resolve(style LinkStyle, label, dest string) LinkReport {
	r, ok := rw.cache[dest]
	if !ok {
		href, err := rw.opts.Resolver.ResolveLink(dest)
		r = LinkReport{Dest: dest, Href: href, Err: err}
		if err != nil {
			r.Href = ""
		}
		rw.cache[dest] = r
	}
	r.Style, r.Label = style, label
	rw.reports = append(rw.reports, r)
	return r
}

func (rw *rewriter) definitions(doc ast.Node) {
	for _, def := range definitions(rw.src, doc) {
		rw.manual[normalizeLabel(def.label)] = true

		r := rw.resolve(StyleDefinition, def.label, def.dest(rw.src))
		switch {
		case r.Err != nil:
			rw.edits = append(rw.edits, Edit{Start: def.lineStart, End: def.lineEnd})
		case r.Href != "":
			rw.edits = append(rw.edits, Edit{Start: def.destStart, End: def.destEnd, Text: r.Href})
		}
	}
}

func (rw *rewriter) links(doc ast.Node) {
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		case *ast.Link:
			rw.link(n)
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
}

func (rw *rewriter) link(n *ast.Link) {
	src := rw.src
	start, stop, ok := textBounds(n)
	if !ok {
		return
	}
	open := strings.LastIndexByte(string(src[:start]), '[')
	shut := strings.IndexByte(string(src[stop:]), ']')
	if open < 0 || shut < 0 {
		return
	}
	shut += stop
	text := string(src[open+1 : shut])
	dest := string(n.Destination)
	after := shut + 1

	if after < len(src) && src[after] == '(' && dest != placeholderDest {
		ds, de, end, ok := inlineDestination(src, after+1)
		if !ok || string(src[ds:de]) != dest {
			return
		}
		r := rw.resolve(StyleInline, text, dest)
		switch {
		case r.Err != nil:
			rw.edits = append(rw.edits, Edit{Start: open, End: end, Text: text})
		case r.Href != "":
			rw.edits = append(rw.edits, Edit{Start: ds, End: de, Text: r.Href})
		}
		return
	}

	if dest != placeholderDest {
		// defined by a reference definition
		return
	}

	style, label, end := StyleShortcut, text, after
	if after < len(src) && src[after] == '[' {
		if e := strings.IndexByte(string(src[after+1:]), ']'); e >= 0 {
			if l := string(src[after+1 : after+1+e]); l != "" {
				style, label = StyleFull, l
			} else {
				style = StyleCollapsed
			}
			end = after + e + 2
		}
	}

	key := normalizeLabel(label)
	if rw.manual[key] {
		return
	}
	r := rw.resolve(style, label, label)
	if r.Err != nil {
		rw.edits = append(rw.edits, Edit{Start: open, End: end, Text: text})
		return
	}
	if r.Href == "" || rw.added[key] {
		return
	}
	rw.added[key] = true
	rw.newDefs = append(rw.newDefs, "["+label+"]: "+r.Href)
}

// inlineDestination parses `dest "title")` starting just after the opening
// parenthesis. It returns the destination span and the offset past `)`.
func inlineDestination(src []byte, pos int) (ds, de, end int, ok bool) {
	i := skipSpace(src, pos)
	if i < len(src) && src[i] == '<' {
		ds = i + 1
		for i = ds; i < len(src) && src[i] != '>' && src[i] != '\n'; i++ {
		}
		if i >= len(src) || src[i] != '>' {
			return 0, 0, 0, false
		}
		de = i
		i++
	} else {
		ds = i
		depth := 0
	loop:
		for ; i < len(src); i++ {
			switch c := src[i]; {
			case c == '\\' && i+1 < len(src):
				i++
			case c == '(':
				depth++
			case c == ')':
				if depth == 0 {
					break loop
				}
				depth--
			case c <= ' ':
				break loop
			}
		}
		de = i
	}

	i = skipSpace(src, i)
	if i < len(src) && (src[i] == '"' || src[i] == '\'' || src[i] == '(') {
		closer := src[i]
		if closer == '(' {
			closer = ')'
		}
		for i++; i < len(src) && src[i] != closer; i++ {
			if src[i] == '\\' {
				i++
			}
		}
		i++
		i = skipSpace(src, i)
	}
	if i >= len(src) || src[i] != ')' {
		return 0, 0, 0, false
	}
	return ds, de, i + 1, true
}

func skipSpace(src []byte, i int) int {
	for i < len(src) && (src[i] == ' ' || src[i] == '\t' || src[i] == '\n' || src[i] == '\r') {
		i++
	}
	return i
}

// definitionBlock formats generated definitions for appending to src.
func definitionBlock(src string, defs []string) string {
	var b strings.Builder
	if src != "" {
		if !strings.HasSuffix(src, "\n") {
			b.WriteByte('\n')
		}
		if !strings.HasSuffix(src, "\n\n") {
			b.WriteByte('\n')
		}
	}
	for _, d := range defs {
		b.WriteString(d)
		b.WriteByte('\n')
	}
	return b.String()
}

func headingEdits(src []byte, doc ast.Node, shift int) []Edit {
	var edits []Edit
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		h, ok := n.(*ast.Heading)
		if !entering || !ok {
			return ast.WalkContinue, nil
		}
		if h.Lines().Len() == 0 {
			return ast.WalkSkipChildren, nil
		}

		i := h.Lines().At(0).Start
		for i > 0 && (src[i-1] == ' ' || src[i-1] == '\t') {
			i--
		}
		end := i
		for i > 0 && src[i-1] == '#' {
			i--
		}
		if end-i != h.Level {
			// setext heading
			return ast.WalkSkipChildren, nil
		}

		level := min(max(h.Level+shift, 1), 6)
		if level != h.Level {
			edits = append(edits, Edit{Start: i, End: end, Text: strings.Repeat("#", level)})
		}
		return ast.WalkSkipChildren, nil
	})
	return edits
}
