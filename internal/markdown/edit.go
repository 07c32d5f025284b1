package markdown

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrOverlappingEdits is returned by Apply when two edits touch the same bytes.
var ErrOverlappingEdits = errors.New("overlapping edits")

// Edit replaces src[Start:End] with Text. Start == End inserts.
type Edit struct {
	Start int
	End   int
	Text  string
}

// ConflictError describes two overlapping edits.
type ConflictError struct {
	First  Edit
	Second Edit
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v: [%d:%d] and [%d:%d]", ErrOverlappingEdits,
		e.First.Start, e.First.End, e.Second.Start, e.Second.End)
}

func (e *ConflictError) Unwrap() error { return ErrOverlappingEdits }

// Apply applies all edits to src in one pass. Edits are sorted by start
// then end offset; insertions at the same offset keep their order.
func Apply(src string, edits []Edit) (string, error) {
	if len(edits) == 0 {
		return src, nil
	}

	sorted := make([]Edit, len(edits))
	copy(sorted, edits)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	for i, e := range sorted {
		if e.Start < 0 || e.End < e.Start || e.End > len(src) {
			return "", fmt.Errorf("invalid edit [%d:%d] for %d bytes", e.Start, e.End, len(src))
		}
		if i > 0 && e.Start < sorted[i-1].End {
			return "", &ConflictError{First: sorted[i-1], Second: e}
		}
	}

	var b strings.Builder
	b.Grow(len(src))
	cursor := 0
	for _, e := range sorted {
		b.WriteString(src[cursor:e.Start])
		b.WriteString(e.Text)
		cursor = e.End
	}
	b.WriteString(src[cursor:])
	return b.String(), nil
}
