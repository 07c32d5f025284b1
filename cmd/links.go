package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jcdickinson/insertdocs/internal/logging"
	"github.com/jcdickinson/insertdocs/internal/markdown"
)

// linkEntry is one row of the links listing.
type linkEntry struct {
	Package string `yaml:"package"`
	Style   string `yaml:"style"`
	Label   string `yaml:"label"`
	Dest    string `yaml:"dest"`
	Href    string `yaml:"href,omitempty"`
	Error   string `yaml:"error,omitempty"`
}

func newLinksCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "links",
		Short: "List every link of the crate docs and what it resolves to",
		Long: `Resolves the links of the crate documentation like crate-into-readme does
but prints them instead of writing the readme. Links that are not intra-doc
links are listed without an href.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "text" && format != "yaml" {
				return fmt.Errorf("unknown format %q, want text or yaml", format)
			}
			entries, err := a.links(cmd)
			if err != nil {
				return err
			}
			if format == "yaml" {
				return writeLinksYAML(a.stdout, entries)
			}
			return writeLinksText(a.stdout, entries)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format: text or yaml")
	return cmd
}

func (a *app) links(cmd *cobra.Command) ([]linkEntry, error) {
	ws, err := a.loadWorkspace(cmd)
	if err != nil {
		return nil, err
	}
	runs, err := a.packages(cmd, ws, modeCrate)
	if err != nil {
		return nil, err
	}

	var entries []linkEntry
	failed := false
	for _, r := range runs {
		text, opts, err := a.loadCrateDocs(cmd.Context(), ws, r)
		if err != nil {
			r.logger.Error("could not load crate documentation", logging.FieldError, err)
			failed = true
			continue
		}
		res, err := markdown.Rewrite(text, opts)
		if err != nil {
			r.logger.Error("could not rewrite crate documentation", logging.FieldError, err)
			failed = true
			continue
		}
		for _, l := range res.Links {
			e := linkEntry{
				Package: r.pkg.Name,
				Style:   l.Style.String(),
				Label:   l.Label,
				Dest:    l.Dest,
				Href:    l.Href,
			}
			if l.Err != nil {
				e.Error = l.Err.Error()
			}
			entries = append(entries, e)
		}
	}

	if failed {
		return entries, errReported
	}
	return entries, nil
}

func writeLinksText(w io.Writer, entries []linkEntry) error {
	for _, e := range entries {
		target := e.Href
		switch {
		case e.Error != "":
			target = "error: " + e.Error
		case target == "":
			target = "(not an intra-doc link)"
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s -> %s\n", e.Package, e.Style, e.Dest, target); err != nil {
			return fmt.Errorf("write links: %w", err)
		}
	}
	return nil
}

func writeLinksYAML(w io.Writer, entries []linkEntry) error {
	if entries == nil {
		entries = []linkEntry{}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("encode links: %w", err)
	}
	return enc.Close()
}
