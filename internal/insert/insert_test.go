package insert

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcdickinson/insertdocs/internal/logging"
	"github.com/jcdickinson/insertdocs/internal/markdown"
	"github.com/jcdickinson/insertdocs/internal/resolve"
)

const manifest = `[package]
name = "foo"

[features]
default = ["std"]
## Enables std.
std = []
## Serde support.
serde = []
`

const libRS = `//! Crate docs.
//!
//! <!-- feature documentation start -->
//! <!-- feature documentation end -->

pub fn f() {}
`

const wantLibRS = "//! Crate docs.\n" +
	"//!\n" +
	"//! <!-- feature documentation start -->\n" +
	"//! - **`std`** *(enabled by default)* — Enables std.\n" +
	"//! - **`serde`** — Serde support.\n" +
	"//! <!-- feature documentation end -->\n" +
	"\n" +
	"pub fn f() {}\n"

type mapResolver map[string]string

func (m mapResolver) ResolveLink(text string) (string, error) {
	if href, ok := m[text]; ok {
		return href, nil
	}
	if strings.ContainsAny(text, "/:") {
		return "", nil
	}
	return "", &resolve.Unresolved{Text: text, Reason: resolve.ReasonNoMatch}
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func readFileT(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func featureTask(dir string) Task {
	return Task{
		Package:  "foo",
		Manifest: filepath.Join(dir, "Cargo.toml"),
		Dest:     filepath.Join(dir, "src", "lib.rs"),
		Section:  "feature documentation",
	}
}

func TestFeatureIntoCrate(t *testing.T) {
	t.Parallel()

	dir := writeFiles(t, map[string]string{"Cargo.toml": manifest, "src/lib.rs": libRS})
	task := featureTask(dir)

	out, err := FeatureIntoCrate(context.Background(), task)
	require.NoError(t, err)
	assert.True(t, out.Changed)
	require.NotNil(t, out.Diff)
	assert.Equal(t, 2, out.Diff.Added)
	assert.Equal(t, wantLibRS, readFileT(t, task.Dest))

	out, err = FeatureIntoCrate(context.Background(), task)
	require.NoError(t, err)
	assert.False(t, out.Changed, "rerun on own output")
	assert.Nil(t, out.Diff)
}

func TestFeatureIntoCrate_Check(t *testing.T) {
	t.Parallel()

	dir := writeFiles(t, map[string]string{"Cargo.toml": manifest, "src/lib.rs": libRS})
	task := featureTask(dir)
	task.Check = true

	out, err := FeatureIntoCrate(context.Background(), task)
	require.ErrorIs(t, err, ErrStale)
	assert.EqualError(t, err, "feature documentation is stale")
	require.NotNil(t, out)
	assert.True(t, out.Stale)
	assert.False(t, out.Changed)
	assert.NotNil(t, out.Diff)
	assert.Equal(t, libRS, readFileT(t, task.Dest), "check never writes")

	require.NoError(t, os.WriteFile(task.Dest, []byte(wantLibRS), 0o644))
	out, err = FeatureIntoCrate(context.Background(), task)
	require.NoError(t, err)
	assert.False(t, out.Stale)
}

func TestFeatureIntoCrate_MissingSection(t *testing.T) {
	t.Parallel()

	dir := writeFiles(t, map[string]string{"Cargo.toml": manifest, "src/lib.rs": "//! No section.\n"})
	task := featureTask(dir)

	_, err := FeatureIntoCrate(context.Background(), task)
	require.ErrorIs(t, err, ErrMissingSection)
	assert.EqualError(t, err, "section not found in lib.rs")

	task.AllowMissingSection = true
	task.Sink = logging.NewSink(false)
	out, err := FeatureIntoCrate(context.Background(), task)
	require.NoError(t, err)
	assert.True(t, out.Missing)
	assert.Equal(t, 1, task.Sink.Warnings())
	assert.Equal(t, "//! No section.\n", readFileT(t, task.Dest))
}

func TestFeatureIntoCrate_BadManifest(t *testing.T) {
	t.Parallel()

	dir := writeFiles(t, map[string]string{
		"Cargo.toml": "[features]\n##no space\nstd = []\n",
		"src/lib.rs": libRS,
	})

	_, err := FeatureIntoCrate(context.Background(), featureTask(dir))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse Cargo.toml")
}

func TestFeatureIntoCrate_HiddenAndLabel(t *testing.T) {
	t.Parallel()

	dir := writeFiles(t, map[string]string{"Cargo.toml": manifest, "src/lib.rs": libRS})
	task := featureTask(dir)
	task.Features.Label = "`{feature}`"
	task.Features.Hidden = []string{"serde"}

	_, err := FeatureIntoCrate(context.Background(), task)
	require.NoError(t, err)

	got := readFileT(t, task.Dest)
	assert.Contains(t, got, "//! - `std` *(enabled by default)* — Enables std.\n")
	assert.NotContains(t, got, "serde")
}

const readme = "# foo\n\n<!-- crate documentation start -->\nold\n<!-- crate documentation end -->\n\nLicense.\n"

func readmeTask(dir string) Task {
	return Task{
		Package:   "foo",
		Dest:      filepath.Join(dir, "README.md"),
		Section:   "crate documentation",
		CrateDocs: "Image loading.\n\n# Usage\n\nSee [Image] and [`missing`].",
		Rewrite: markdown.Options{
			ShiftHeadings: 1,
			Resolver:      mapResolver{"Image": "https://docs.rs/foo/latest/foo/struct.Image.html"},
		},
	}
}

func TestCrateIntoReadme(t *testing.T) {
	t.Parallel()

	dir := writeFiles(t, map[string]string{"README.md": readme})
	task := readmeTask(dir)
	task.Sink = logging.NewSink(false)

	out, err := CrateIntoReadme(context.Background(), task)
	require.NoError(t, err)
	assert.True(t, out.Changed)

	want := "# foo\n\n<!-- crate documentation start -->\n" +
		"Image loading.\n\n## Usage\n\nSee [Image] and `missing`.\n\n" +
		"[Image]: https://docs.rs/foo/latest/foo/struct.Image.html\n\n" +
		"<!-- crate documentation end -->\n\nLicense.\n"
	assert.Equal(t, want, readFileT(t, task.Dest))
	assert.Equal(t, 1, task.Sink.Warnings(), "unresolved link is a warning")
	assert.Contains(t, task.Sink.Diagnostics(), logging.Diagnostic{
		Level:   log.DebugLevel,
		Message: "resolved doc link",
		KeyVals: []any{logging.FieldLink, "Image", logging.FieldURL, "https://docs.rs/foo/latest/foo/struct.Image.html"},
	})

	out, err = CrateIntoReadme(context.Background(), task)
	require.NoError(t, err)
	assert.False(t, out.Changed, "rerun on own output")
}

func TestCrateIntoReadme_Strict(t *testing.T) {
	t.Parallel()

	dir := writeFiles(t, map[string]string{"README.md": readme})
	task := readmeTask(dir)
	task.Sink = logging.NewSink(true)

	_, err := CrateIntoReadme(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 1, task.Sink.Errors())
	assert.Equal(t, 0, task.Sink.Warnings())
}

func TestCrateIntoReadme_NotLinkableIsDebug(t *testing.T) {
	t.Parallel()

	dir := writeFiles(t, map[string]string{"README.md": readme})
	task := readmeTask(dir)
	task.CrateDocs = "See [Impl]."
	task.Rewrite.Resolver = notLinkable{}
	task.Sink = logging.NewSink(false)

	_, err := CrateIntoReadme(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 0, task.Sink.Warnings())
	require.Len(t, task.Sink.Diagnostics(), 1)
}

type notLinkable struct{}

func (notLinkable) ResolveLink(text string) (string, error) {
	return "", &resolve.Unresolved{Text: text, Reason: resolve.ReasonNotLinkable}
}

func TestCrateIntoReadme_Check(t *testing.T) {
	t.Parallel()

	dir := writeFiles(t, map[string]string{"README.md": readme})
	task := readmeTask(dir)
	task.Check = true

	out, err := CrateIntoReadme(context.Background(), task)
	require.ErrorIs(t, err, ErrStale)
	assert.EqualError(t, err, "crate documentation is stale")
	assert.True(t, out.Stale)
	assert.Contains(t, out.Diff.String(), "+Image loading.")
	assert.Equal(t, readme, readFileT(t, task.Dest))
}

func TestCrateIntoReadme_Missing(t *testing.T) {
	t.Parallel()

	dir := writeFiles(t, map[string]string{"README.md": "# foo\n"})
	task := readmeTask(dir)

	_, err := CrateIntoReadme(context.Background(), task)
	require.ErrorIs(t, err, ErrMissingSection)
	assert.EqualError(t, err, "section not found in README.md")

	task.Dest = filepath.Join(dir, "NOPE.md")
	_, err = CrateIntoReadme(context.Background(), task)
	require.Error(t, err)

	task.AllowMissingSection = true
	out, err := CrateIntoReadme(context.Background(), task)
	require.NoError(t, err)
	assert.True(t, out.Missing)
}

func TestCrateIntoReadme_Subsections(t *testing.T) {
	t.Parallel()

	before := "# foo\n\n" +
		"<!-- crate documentation intro start -->\n<!-- crate documentation intro end -->\n\n" +
		"Middle.\n\n" +
		"<!-- crate documentation usage start -->\nold\n<!-- crate documentation usage end -->\n"
	dir := writeFiles(t, map[string]string{"README.md": before})

	task := readmeTask(dir)
	task.Rewrite = markdown.Options{Resolver: mapResolver{"Image": "https://x/struct.Image.html"}}
	task.CrateDocs = "<!-- crate documentation intro start -->\nIntro with [Image].\n<!-- crate documentation intro end -->\n\n" +
		"Not copied.\n\n" +
		"<!-- crate documentation usage start -->\nUse it.\n<!-- crate documentation usage end -->"

	_, err := CrateIntoReadme(context.Background(), task)
	require.NoError(t, err)

	want := "# foo\n\n" +
		"<!-- crate documentation intro start -->\nIntro with [Image].\n\n[Image]: https://x/struct.Image.html\n<!-- crate documentation intro end -->\n\n" +
		"Middle.\n\n" +
		"<!-- crate documentation usage start -->\nUse it.\n\n[Image]: https://x/struct.Image.html\n<!-- crate documentation usage end -->\n"
	assert.Equal(t, want, readFileT(t, task.Dest))

	out, err := CrateIntoReadme(context.Background(), task)
	require.NoError(t, err)
	assert.False(t, out.Changed)
}

func TestCrateIntoReadme_OverlappingSubsections(t *testing.T) {
	t.Parallel()

	dir := writeFiles(t, map[string]string{"README.md": "<!-- crate documentation a start -->\n<!-- crate documentation b start -->\n"})

	_, err := CrateIntoReadme(context.Background(), readmeTask(dir))
	assert.ErrorIs(t, err, markdown.ErrSubsectionsOverlap)
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	name, failure := Describe("feature documentation", "crate documentation", false)
	assert.Equal(t, "insert feature documentation into crate documentation", name)
	assert.Equal(t, "could not insert feature documentation into crate documentation", failure)

	name, failure = Describe("crate documentation", "readme", true)
	assert.Equal(t, "checking crate documentation in readme", name)
	assert.Equal(t, "checking crate documentation failed", failure)
}
