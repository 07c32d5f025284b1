package diff

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Styles color the parts of a diff.
type Styles struct {
	Header  lipgloss.Style
	Hunk    lipgloss.Style
	Add     lipgloss.Style
	Remove  lipgloss.Style
	Context lipgloss.Style
}

// NewStyles returns colored styles, or plain ones when color is false.
func NewStyles(color bool) *Styles {
	if !color {
		plain := lipgloss.NewStyle()
		return &Styles{Header: plain, Hunk: plain, Add: plain, Remove: plain, Context: plain}
	}
	return &Styles{
		Header:  lipgloss.NewStyle().Bold(true),
		Hunk:    lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		Add:     lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		Remove:  lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		Context: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// ColorEnabled resolves a --color value of "always", "never" or "auto"
// for w. Auto honors NO_COLOR and enables color on terminals only.
func ColorEnabled(mode string, w io.Writer) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// Write prints d to w with s applied line by line.
func Write(w io.Writer, d *Diff, s *Styles) error {
	for _, line := range strings.Split(strings.TrimSuffix(d.String(), "\n"), "\n") {
		if line == "" {
			continue
		}
		var style lipgloss.Style
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
			style = s.Header
		case strings.HasPrefix(line, "@@"):
			style = s.Hunk
		case strings.HasPrefix(line, "+"):
			style = s.Add
		case strings.HasPrefix(line, "-"):
			style = s.Remove
		default:
			style = s.Context
		}
		if _, err := fmt.Fprintln(w, style.Render(line)); err != nil {
			return fmt.Errorf("write diff: %w", err)
		}
	}
	return nil
}
