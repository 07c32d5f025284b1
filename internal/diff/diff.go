// Package diff produces unified diffs of stale documentation files.
package diff

import (
	"fmt"
	"strings"
)

// contextLines is the number of unchanged lines shown around a change.
const contextLines = 3

// Op is the kind of a diff line.
type Op int

const (
	Equal Op = iota
	Insert
	Delete
)

// Line is one line of a hunk.
type Line struct {
	Op   Op
	Text string
}

// Hunk is a group of changes with surrounding context. Starts are 1-based.
type Hunk struct {
	OldStart, OldCount int
	NewStart, NewCount int
	Lines              []Line
}

// Diff is the line diff of one file.
type Diff struct {
	Path  string
	Hunks []Hunk
	Added int
	// Removed counts deleted lines.
	Removed int
}

// Compute diffs before against after. It returns nil when both are equal.
func Compute(path, before, after string) *Diff {
	if before == after {
		return nil
	}
	ops := lineOps(splitLines(before), splitLines(after))

	d := &Diff{Path: path}
	for _, l := range ops {
		switch l.Op {
		case Insert:
			d.Added++
		case Delete:
			d.Removed++
		}
	}
	d.Hunks = hunks(ops)
	return d
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// lineOps returns the edit script turning a into b, from a longest common
// subsequence table.
func lineOps(a, b []string) []Line {
	n, m := len(a), len(b)
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}

	var ops []Line
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			ops = append(ops, Line{Equal, a[i]})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			ops = append(ops, Line{Delete, a[i]})
			i++
		default:
			ops = append(ops, Line{Insert, b[j]})
			j++
		}
	}
	for ; i < n; i++ {
		ops = append(ops, Line{Delete, a[i]})
	}
	for ; j < m; j++ {
		ops = append(ops, Line{Insert, b[j]})
	}
	return ops
}

func hunks(ops []Line) []Hunk {
	var out []Hunk
	oldLine, newLine := 1, 1
	for i := 0; i < len(ops); {
		if ops[i].Op == Equal {
			oldLine++
			newLine++
			i++
			continue
		}

		// back up over leading context
		start := max(i-contextLines, 0)
		for k := start; k < i; k++ {
			oldLine--
			newLine--
		}
		h := Hunk{OldStart: oldLine, NewStart: newLine}

		// extend until a run of unchanged lines is long enough to split
		end := i
		for end < len(ops) {
			if ops[end].Op != Equal {
				end++
				continue
			}
			run := end
			for run < len(ops) && ops[run].Op == Equal {
				run++
			}
			if run == len(ops) || run-end > 2*contextLines {
				end = min(end+contextLines, len(ops))
				break
			}
			end = run
		}

		for _, l := range ops[start:end] {
			h.Lines = append(h.Lines, l)
			if l.Op != Insert {
				h.OldCount++
				oldLine++
			}
			if l.Op != Delete {
				h.NewCount++
				newLine++
			}
		}
		out = append(out, h)
		i = end
	}

	for k := range out {
		// an empty side starts before its first line
		if out[k].OldCount == 0 {
			out[k].OldStart--
		}
		if out[k].NewCount == 0 {
			out[k].NewStart--
		}
	}
	return out
}

// String formats the diff in unified format.
func (d *Diff) String() string {
	if d == nil || len(d.Hunks) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n+++ b/%s\n", d.Path, d.Path)
	for _, h := range d.Hunks {
		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
		for _, l := range h.Lines {
			b.WriteString(l.Op.prefix())
			b.WriteString(l.Text)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func (o Op) prefix() string {
	switch o {
	case Insert:
		return "+"
	case Delete:
		return "-"
	}
	return " "
}
