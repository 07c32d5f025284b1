// Package features turns the documented `[features]` table of a Cargo
// manifest into a markdown list.
//
// Documentation lives in comments right above each feature:
//
//	[features]
//	default = ["std"]
//	#! ### Formats
//	## Enables loading images
//	std = []
//
// `##` lines document the following feature and `#!` lines are prose
// rendered before it.
package features

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/pelletier/go-toml/v2/unstable"
)

// ErrCommentSpacing is returned for a doc comment like `##text`.
var ErrCommentSpacing = errors.New("a non-empty feature docs comment line must start with a space")

// Entry is one feature of the manifest, in declaration order.
type Entry struct {
	Name    string
	Default bool
	// Docs are the `##` lines, without the marker.
	Docs []string
	// Prose are the `#!` lines preceding the feature.
	Prose []string
}

type manifest struct {
	Features map[string]any `toml:"features"`
}

// Extract reads the feature entries of a Cargo.toml. The `default` feature
// only sets the Default flags and is not listed itself.
func Extract(data []byte) ([]Entry, error) {
	var m manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(m.Features) == 0 {
		return nil, nil
	}

	defaults := make(map[string]bool)
	if list, ok := m.Features["default"].([]any); ok {
		for _, v := range list {
			if s, ok := v.(string); ok {
				defaults[s] = true
			}
		}
	}

	order, err := featureOrder(data)
	if err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	docs := make(map[string]declaration)
	for _, d := range scanFeatures(string(data)) {
		if _, ok := docs[d.name]; !ok {
			docs[d.name] = d
		}
	}

	var entries []Entry
	seen := make(map[string]bool)
	for _, name := range order {
		if _, ok := m.Features[name]; !ok || seen[name] {
			continue
		}
		seen[name] = true
		if name == "default" {
			continue
		}
		e := Entry{Name: name, Default: defaults[name]}
		for _, c := range docs[name].comments {
			if rest, ok := strings.CutPrefix(c.text, "#!"); ok {
				line, err := commentLine(rest)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", c.line, err)
				}
				e.Prose = append(e.Prose, line)
			} else if rest, ok := strings.CutPrefix(c.text, "##"); ok {
				line, err := commentLine(rest)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", c.line, err)
				}
				e.Docs = append(e.Docs, line)
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// featureOrder returns the feature names in document order, whether they are
// keys of a `[features]` table, dotted `features.x` keys or members of an
// inline `features = { ... }` table.
func featureOrder(data []byte) ([]string, error) {
	var (
		p     unstable.Parser
		table []string
		names []string
	)
	p.Reset(data)
	for p.NextExpression() {
		expr := p.Expression()
		switch expr.Kind {
		case unstable.Table:
			table = keyPath(expr.Key())
		case unstable.ArrayTable:
			// entries of an array of tables never hold features
			table = append(keyPath(expr.Key()), "[]")
		case unstable.KeyValue:
			full := append(append([]string(nil), table...), keyPath(expr.Key())...)
			switch {
			case len(full) == 2 && full[0] == "features":
				names = append(names, full[1])
			case len(full) == 1 && full[0] == "features" && expr.Value().Kind == unstable.InlineTable:
				it := expr.Value().Children()
				for it.Next() {
					if kv := it.Node(); kv.Kind == unstable.KeyValue {
						if key := keyPath(kv.Key()); len(key) == 1 {
							names = append(names, key[0])
						}
					}
				}
			}
		}
	}
	if err := p.Error(); err != nil {
		return nil, err
	}
	return names, nil
}

func keyPath(it unstable.Iterator) []string {
	var path []string
	for it.Next() {
		path = append(path, string(it.Node().Data))
	}
	return path
}

// commentLine strips the single space after the comment marker. Lines that
// are only whitespace become empty.
func commentLine(s string) (string, error) {
	if strings.TrimFunc(s, unicode.IsSpace) != "" {
		var ok bool
		if s, ok = strings.CutPrefix(s, " "); !ok {
			return "", ErrCommentSpacing
		}
	}
	return strings.TrimRightFunc(s, unicode.IsSpace), nil
}

type comment struct {
	line int
	text string
}

type declaration struct {
	name     string
	comments []comment
}

// scanFeatures lists the keys of the `[features]` table with the comment
// lines directly above each key. Comments inside multi-line values belong
// to the value and are skipped.
func scanFeatures(src string) []declaration {
	var (
		out     []declaration
		pending []comment
		in      bool
		depth   int
	)
	for i, line := range strings.Split(src, "\n") {
		line = strings.TrimSuffix(line, "\r")
		trimmed := strings.TrimSpace(line)

		if depth > 0 {
			depth += bracketDepth(trimmed)
			continue
		}

		if strings.HasPrefix(trimmed, "[") {
			in = tableName(trimmed) == "features"
			pending = nil
			continue
		}
		if !in {
			continue
		}

		switch {
		case trimmed == "":
		case strings.HasPrefix(trimmed, "#"):
			pending = append(pending, comment{line: i + 1, text: trimmed})
		default:
			name, value, ok := splitKey(trimmed)
			if ok {
				out = append(out, declaration{name: name, comments: pending})
			}
			pending = nil
			depth = bracketDepth(value)
		}
	}
	return out
}

// tableName returns the dotted name of a `[table]` header with whitespace
// and a trailing comment removed.
func tableName(header string) string {
	if strings.HasPrefix(header, "[[") {
		return ""
	}
	end := strings.IndexByte(header, ']')
	if end < 0 {
		return ""
	}
	return strings.Join(strings.Fields(header[1:end]), "")
}

// splitKey splits `name = value` where name may be quoted.
func splitKey(line string) (name, value string, ok bool) {
	switch line[0] {
	case '"', '\'':
		end := strings.IndexByte(line[1:], line[0])
		if end < 0 {
			return "", "", false
		}
		name, line = line[1:end+1], line[end+2:]
	default:
		end := strings.IndexFunc(line, func(r rune) bool {
			return !(r == '_' || r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r))
		})
		if end <= 0 {
			return "", "", false
		}
		name, line = line[:end], line[end:]
	}
	value, ok = strings.CutPrefix(strings.TrimSpace(line), "=")
	if !ok {
		return "", line, false
	}
	return name, value, true
}

// bracketDepth returns the change in array nesting over s, ignoring
// brackets inside strings and comments.
func bracketDepth(s string) int {
	depth := 0
	var quote rune
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '#':
			return depth
		case r == '[' || r == '{':
			depth++
		case r == ']' || r == '}':
			depth--
		}
	}
	return depth
}
