package markdown

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnresolved = errors.New("unresolved")

// mapResolver resolves from a fixed table. Text containing "://" is not an
// intra-doc path; anything else missing from the table fails.
type mapResolver map[string]string

func (m mapResolver) ResolveLink(text string) (string, error) {
	if strings.Contains(text, "://") {
		return "", nil
	}
	text = strings.Trim(text, "`")
	if href, ok := m[text]; ok {
		return href, nil
	}
	return "", errUnresolved
}

var testLinks = mapResolver{
	"Image":        "https://docs.rs/imgkit/latest/imgkit/struct.Image.html",
	"crate::Image": "https://docs.rs/imgkit/latest/imgkit/struct.Image.html",
	"codec":        "https://docs.rs/imgkit/latest/imgkit/codec/index.html",
}

func rewrite(t *testing.T, src string, opts Options) *Result {
	t.Helper()
	res, err := Rewrite(src, opts)
	require.NoError(t, err)
	return res
}

func TestRewrite_ReferenceLinks(t *testing.T) {
	t.Parallel()

	src := "See [Image], [the codec][codec], [`Image`][] and [Missing].\n"
	res := rewrite(t, src, Options{Resolver: testLinks})

	want := "See [Image], [the codec][codec], [`Image`][] and Missing.\n" +
		"\n" +
		"[Image]: https://docs.rs/imgkit/latest/imgkit/struct.Image.html\n" +
		"[codec]: https://docs.rs/imgkit/latest/imgkit/codec/index.html\n" +
		"[`Image`]: https://docs.rs/imgkit/latest/imgkit/struct.Image.html\n"
	assert.Equal(t, want, res.Text)

	require.Len(t, res.Links, 4)
	assert.Equal(t, StyleShortcut, res.Links[0].Style)
	assert.Equal(t, StyleFull, res.Links[1].Style)
	assert.Equal(t, "codec", res.Links[1].Label)
	assert.Equal(t, StyleCollapsed, res.Links[2].Style)

	unresolved := res.Unresolved()
	require.Len(t, unresolved, 1)
	assert.Equal(t, "Missing", unresolved[0].Label)
	assert.ErrorIs(t, unresolved[0].Err, errUnresolved)
}

func TestRewrite_ReferenceDeduplicated(t *testing.T) {
	t.Parallel()

	src := "[Image] and [image][Image] again"
	res := rewrite(t, src, Options{Resolver: testLinks})
	assert.Equal(t, "[Image] and [image][Image] again\n\n[Image]: https://docs.rs/imgkit/latest/imgkit/struct.Image.html\n", res.Text)
}

func TestRewrite_ManualDefinitions(t *testing.T) {
	t.Parallel()

	src := "See [img], [Image] and [web].\n" +
		"\n" +
		"[img]: crate::Image\n" +
		"[Image]: https://example.com/image\n" +
		"[bad]: Missing\n" +
		"[web]: https://example.com\n"
	res := rewrite(t, src, Options{Resolver: testLinks})

	want := "See [img], [Image] and [web].\n" +
		"\n" +
		"[img]: https://docs.rs/imgkit/latest/imgkit/struct.Image.html\n" +
		"[Image]: https://example.com/image\n" +
		"[web]: https://example.com\n"
	assert.Equal(t, want, res.Text)
}

func TestRewrite_InlineLinks(t *testing.T) {
	t.Parallel()

	src := "A [link](crate::Image), [gone](Missing), [web](https://example.com) and [`Image`](<Image> \"title\").\n"
	res := rewrite(t, src, Options{Resolver: testLinks})

	want := "A [link](https://docs.rs/imgkit/latest/imgkit/struct.Image.html), gone, [web](https://example.com)" +
		" and [`Image`](<https://docs.rs/imgkit/latest/imgkit/struct.Image.html> \"title\").\n"
	assert.Equal(t, want, res.Text)

	require.Len(t, res.Links, 4)
	assert.Equal(t, StyleInline, res.Links[0].Style)
	assert.True(t, res.Links[0].Resolved())
	assert.Error(t, res.Links[1].Err)
	assert.False(t, res.Links[2].Resolved())
	assert.NoError(t, res.Links[2].Err)
}

func TestRewrite_LinksInCodeUntouched(t *testing.T) {
	t.Parallel()

	src := "`[Image]`\n\n```text\n[Image](crate::Image)\n```\n"
	res := rewrite(t, src, Options{Resolver: testLinks})
	assert.Equal(t, src, res.Text)
	assert.Empty(t, res.Links)
}

func TestRewrite_NoResolver(t *testing.T) {
	t.Parallel()

	src := "[Image] and [x](crate::Image)\n"
	assert.Equal(t, src, rewrite(t, src, Options{}).Text)
}

func TestRewrite_CodeBlocks(t *testing.T) {
	t.Parallel()

	src := "```\n" +
		"let one = 1;\n" +
		"# hidden();\n" +
		"##[derive(Debug)]\n" +
		"```\n" +
		"\n" +
		"```rust,should_panic\n" +
		"# use crate::Image;\n" +
		"let x = 1;\n" +
		"```\n" +
		"\n" +
		"    let y = 2;\n" +
		"    # hidden();\n" +
		"    let z = 3;\n" +
		"\n" +
		"```python\n" +
		"# comment\n" +
		"```\n"

	want := "```rust\n" +
		"let one = 1;\n" +
		"#[derive(Debug)]\n" +
		"```\n" +
		"\n" +
		"```rust\n" +
		"let x = 1;\n" +
		"```\n" +
		"\n" +
		"```rust\n" +
		"let y = 2;\n" +
		"let z = 3;\n" +
		"```\n" +
		"\n" +
		"```python\n" +
		"# comment\n" +
		"```\n"

	assert.Equal(t, want, rewrite(t, src, Options{}).Text)
}

func TestRewrite_IndentedBlockAtEnd(t *testing.T) {
	t.Parallel()

	src := "Text\n\n    code()"
	assert.Equal(t, "Text\n\n```rust\ncode()\n```", rewrite(t, src, Options{}).Text)
}

func TestRewrite_CodeBlockInQuote(t *testing.T) {
	t.Parallel()

	src := "> ```ignore\n> # hidden\n> shown();\n> ```\n"
	assert.Equal(t, "> ```rust\n> shown();\n> ```\n", rewrite(t, src, Options{}).Text)
}

func TestIsRustInfo(t *testing.T) {
	t.Parallel()

	for _, info := range []string{"", "rust", "ignore", "should_panic", "no_run", "compile_fail",
		"edition2021", "standalone_crate", "ignore-x86_64,ignore-windows"} {
		assert.True(t, IsRustInfo(info), info)
	}
	for _, info := range []string{"c", "python", "text", "toml"} {
		assert.False(t, IsRustInfo(info), info)
	}
}

func TestRewrite_ShiftHeadings(t *testing.T) {
	t.Parallel()

	src := "# A\n\n## B\n\n  ####   C\n\n> # Q\n\nS\n===\n"
	tests := []struct {
		shift int
		want  string
	}{
		{0, src},
		{1, "## A\n\n### B\n\n  #####   C\n\n> ## Q\n\nS\n===\n"},
		{-3, "# A\n\n# B\n\n  #   C\n\n> # Q\n\nS\n===\n"},
		{6, "###### A\n\n###### B\n\n  ######   C\n\n> ###### Q\n\nS\n===\n"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, rewrite(t, src, Options{ShiftHeadings: tt.shift}).Text, "shift %d", tt.shift)
	}
}

func TestRewrite_Idempotent(t *testing.T) {
	t.Parallel()

	src := "# Title\n\nUses [Image] and [codec](codec).\n\n```\n# hidden\nshown();\n```\n\n    indented();\n"
	opts := Options{Resolver: testLinks}
	once := rewrite(t, src, opts).Text
	twice := rewrite(t, once, opts).Text
	assert.Equal(t, once, twice)
}

func TestRewrite_DefinitionsConserved(t *testing.T) {
	t.Parallel()

	src := "[Image] [codec] [Image] [web]\n\n[web]: https://example.com\n"
	res := rewrite(t, src, Options{Resolver: testLinks})
	body, defs := SplitDefinitions(res.Text)

	assert.Equal(t, "[Image] [codec] [Image] [web]\n\n\n", body)
	assert.Equal(t, "[web]: https://example.com\n"+
		"[Image]: https://docs.rs/imgkit/latest/imgkit/struct.Image.html\n"+
		"[codec]: https://docs.rs/imgkit/latest/imgkit/codec/index.html\n", defs)
}

func TestRewrite_UnresolvedReferencesBecomeText(t *testing.T) {
	t.Parallel()

	src := "See [Missing] and [the text][Gone].\n\n[`Gone`][] stays [web].\n\n[web]: https://example.com\n"
	res := rewrite(t, src, Options{Resolver: testLinks})

	want := "See Missing and the text.\n\n`Gone` stays [web].\n\n[web]: https://example.com\n"
	assert.Equal(t, want, res.Text)

	unresolved := res.Unresolved()
	require.Len(t, unresolved, 3)
	assert.Equal(t, StyleShortcut, unresolved[0].Style)
	assert.Equal(t, StyleFull, unresolved[1].Style)
	assert.Equal(t, "Gone", unresolved[1].Label)
	assert.Equal(t, StyleCollapsed, unresolved[2].Style)
}
