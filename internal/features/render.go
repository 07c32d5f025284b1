package features

import "strings"

// DefaultLabel is the label template used when none is configured.
const DefaultLabel = "**`{feature}`**"

// Options control Render.
type Options struct {
	// Label is the bullet label; `{feature}` is replaced by the feature
	// name. Empty means DefaultLabel.
	Label string
	// Hidden features are left out of the list. Their prose is kept.
	Hidden []string
}

// Render formats entries as a markdown list:
//
//	- **`std`** *(enabled by default)* — Enables loading images
//	  and a second line.
func Render(entries []Entry, opts Options) string {
	label := opts.Label
	if label == "" {
		label = DefaultLabel
	}
	hidden := make(map[string]bool, len(opts.Hidden))
	for _, h := range opts.Hidden {
		hidden[h] = true
	}

	var b strings.Builder
	for _, e := range entries {
		if len(e.Prose) > 0 {
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			for _, line := range e.Prose {
				b.WriteString(line)
				b.WriteByte('\n')
			}
			b.WriteByte('\n')
		}
		if hidden[e.Name] {
			continue
		}

		b.WriteString("- ")
		b.WriteString(strings.ReplaceAll(label, "{feature}", e.Name))
		if e.Default {
			b.WriteString(" *(enabled by default)*")
		}
		if len(e.Docs) == 0 {
			b.WriteByte('\n')
			continue
		}
		for i, line := range e.Docs {
			if i == 0 {
				b.WriteString(" — ")
			} else {
				b.WriteString("  ")
			}
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
