// Package insert synchronizes documentation sections: rendered feature docs
// into the crate docs of lib.rs, and the crate docs as rustdoc sees them into
// the readme.
package insert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jcdickinson/insertdocs/internal/diff"
	"github.com/jcdickinson/insertdocs/internal/features"
	"github.com/jcdickinson/insertdocs/internal/fsutil"
	"github.com/jcdickinson/insertdocs/internal/logging"
	"github.com/jcdickinson/insertdocs/internal/markdown"
	"github.com/jcdickinson/insertdocs/internal/resolve"
	"github.com/jcdickinson/insertdocs/internal/rustsrc"
)

var (
	// ErrMissingSection is returned when the destination has no section
	// with the configured name.
	ErrMissingSection = errors.New("section not found")
	// ErrStale is returned in check mode when the destination would change.
	ErrStale = errors.New("documentation is stale")
)

// Task describes one insertion.
type Task struct {
	// Package names the package in diagnostics.
	Package string
	// Manifest is the package Cargo.toml. Feature docs are read from it.
	Manifest string
	// Dest is the file that receives the section: lib.rs or the readme.
	Dest string
	// Section is the marker name.
	Section string
	// Check compares instead of writing.
	Check bool
	// AllowMissingSection turns a missing section into a warning.
	AllowMissingSection bool

	// Features controls the feature list.
	Features features.Options

	// CrateDocs is the crate root documentation as rustdoc reports it.
	CrateDocs string
	// Rewrite controls how CrateDocs is transformed for the readme.
	Rewrite markdown.Options

	// Sink receives diagnostics. A fresh non-strict sink is used when nil.
	Sink *logging.Sink
}

// Outcome reports what a task did.
type Outcome struct {
	Path string
	// Changed is set when the file was written.
	Changed bool
	// Stale is set in check mode when the file differs from the output.
	Stale bool
	Diff  *diff.Diff
	// Missing is set when the section was not found and that was allowed.
	Missing bool
}

// Describe returns the name of a task moving docs from one place to another
// and the context used when it fails.
func Describe(from, to string, check bool) (name, failure string) {
	if check {
		return fmt.Sprintf("checking %s in %s", from, to), fmt.Sprintf("checking %s failed", from)
	}
	name = fmt.Sprintf("insert %s into %s", from, to)
	return name, "could not " + name
}

func (t *Task) sink() *logging.Sink {
	if t.Sink == nil {
		t.Sink = logging.NewSink(false)
	}
	return t.Sink
}

// missing handles a section that does not exist in the destination.
func (t *Task) missing() (*Outcome, error) {
	file := filepath.Base(t.Dest)
	if t.AllowMissingSection {
		t.sink().Warn(fmt.Sprintf("section not found in %s", file),
			logging.FieldPath, t.Dest,
			logging.FieldSection, t.Section,
		)
		return &Outcome{Path: t.Dest, Missing: true}, nil
	}
	return nil, fmt.Errorf("%w in %s", ErrMissingSection, file)
}

// finish compares the new content with the old one and writes or reports it.
func (t *Task) finish(ctx context.Context, what, before, after string) (*Outcome, error) {
	out := &Outcome{Path: t.Dest, Diff: diff.Compute(t.Dest, before, after)}
	if before == after {
		return out, nil
	}

	if t.Check {
		out.Stale = true
		return out, fmt.Errorf("%s %w", what, ErrStale)
	}

	if err := fsutil.WriteAtomic(ctx, t.Dest, []byte(after)); err != nil {
		return nil, fmt.Errorf("failed to write to %s: %w", filepath.Base(t.Dest), err)
	}
	out.Changed = true
	return out, nil
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	return string(data), nil
}

// FeatureIntoCrate renders the feature docs of t.Manifest into the
// t.Section section of the `//!` docs in t.Dest.
func FeatureIntoCrate(ctx context.Context, t Task) (*Outcome, error) {
	lib, err := readFile(t.Dest)
	if err != nil {
		return nil, err
	}

	docs, err := rustsrc.Parse(lib)
	if err != nil {
		return nil, fmt.Errorf("parsing crate docs: %w", err)
	}

	section, ok := docs.Section(t.Section)
	if !ok {
		return t.missing()
	}

	manifest, err := os.ReadFile(t.Manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to read Cargo.toml: %w", err)
	}
	entries, err := features.Extract(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Cargo.toml: %w", err)
	}

	updated, err := docs.Replace(section, features.Render(entries, t.Features))
	if err != nil {
		return nil, err
	}

	return t.finish(ctx, "feature", lib, updated)
}

// CrateIntoReadme rewrites t.CrateDocs for the readme and splices it into
// t.Section of t.Dest. A readme without the section but with subsections
// of it gets each subsection filled from the same-named subsection of the
// crate docs.
func CrateIntoReadme(ctx context.Context, t Task) (*Outcome, error) {
	readme, err := os.ReadFile(t.Dest)
	if errors.Is(err, os.ErrNotExist) && t.AllowMissingSection {
		return t.missing()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(t.Dest), err)
	}
	before := string(readme)

	section, whole := markdown.FindSection(before, t.Section)
	var subsections []markdown.Section
	if !whole {
		subsections, err = markdown.FindSubsections(before, t.Section)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(t.Dest), err)
		}
		if len(subsections) == 0 {
			return t.missing()
		}
	}

	res, err := markdown.Rewrite(t.CrateDocs, t.Rewrite)
	if err != nil {
		return nil, fmt.Errorf("rewriting crate docs: %w", err)
	}
	t.report(res)

	var after string
	if whole {
		after = markdown.Splice(before, section, "\n"+res.Text+"\n")
	} else {
		after, err = t.fillSubsections(before, subsections, res.Text)
		if err != nil {
			return nil, err
		}
	}

	return t.finish(ctx, "crate", before, after)
}

// fillSubsections replaces each readme subsection with the matching crate
// docs subsection followed by every link definition of the crate docs.
// Subsections are spliced back to front so earlier offsets stay valid.
func (t *Task) fillSubsections(readme string, subs []markdown.Section, docs string) (string, error) {
	source, err := markdown.FindSubsections(docs, t.Section)
	if err != nil {
		return "", fmt.Errorf("crate docs: %w", err)
	}
	byName := make(map[string]markdown.Section, len(source))
	for _, s := range source {
		byName[s.Name] = s
	}

	_, defs := markdown.SplitDefinitions(docs)

	out := readme
	for i := len(subs) - 1; i >= 0; i-- {
		sub := subs[i]
		src, ok := byName[sub.Name]
		if !ok {
			t.sink().Warn("subsection not found in crate docs",
				logging.FieldSection, t.Section+" "+sub.Name,
				logging.FieldPath, t.Dest,
			)
			continue
		}

		body, _ := markdown.SplitDefinitions(src.Content(docs))
		content := strings.Trim(body, "\n")
		if defs != "" {
			content += "\n\n" + strings.TrimRight(defs, "\n")
		}
		out = markdown.Splice(out, sub, "\n"+content+"\n")
	}
	return out, nil
}

// report records link diagnostics. Links to items that have no page are
// only worth a debug message.
func (t *Task) report(res *markdown.Result) {
	sink := t.sink()
	for _, l := range res.Links {
		if l.Resolved() {
			sink.Debug("resolved doc link", logging.FieldLink, l.Dest, logging.FieldURL, l.Href)
		}
	}
	for _, l := range res.Unresolved() {
		var u *resolve.Unresolved
		if errors.As(l.Err, &u) && u.Reason == resolve.ReasonNotLinkable {
			sink.Debug("link target has no documentation page",
				logging.FieldLink, l.Dest,
				logging.FieldReason, u.Reason.String(),
			)
			continue
		}
		sink.Warn("failed to resolve doc link",
			logging.FieldLink, l.Dest,
			logging.FieldError, l.Err,
		)
	}
}
