package docs

import (
	"errors"
	"strconv"
	"strings"
	"testing"
)

const minimalCrate = `{
  "root": 0,
  "crate_version": "0.1.0",
  "format_version": 45,
  "index": {
    "0": {"id": 0, "crate_id": 0, "name": "mycrate", "docs": "Crate docs [Thing].",
          "links": {"Thing": 1}, "attrs": ["#[doc(inline)]", {"other": "#[doc(hidden)]"}],
          "visibility": "public", "inner": {"module": {"is_crate": true, "items": [1]}}},
    "1": {"id": 1, "crate_id": 0, "name": "Thing", "visibility": "public",
          "inner": {"struct": {"kind": "unit", "impls": []}}}
  },
  "paths": {"0": {"crate_id": 0, "path": ["mycrate"], "kind": "module"}},
  "external_crates": {"5": {"name": "serde", "html_root_url": "https://docs.rs/serde/1.0.200/"}}
}`

func TestParse(t *testing.T) {
	t.Parallel()

	crate, err := Parse([]byte(minimalCrate))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	root := crate.RootItem()
	if root == nil {
		t.Fatal("expected root item")
	}
	if got := root.DocString(); got != "Crate docs [Thing]." {
		t.Errorf("got %q", got)
	}
	if root.Links["Thing"] != 1 {
		t.Errorf("links = %v", root.Links)
	}
	if len(root.Attrs) != 2 || root.Attrs[0].Text != "#[doc(inline)]" || root.Attrs[1].Text != "#[doc(hidden)]" {
		t.Errorf("attrs = %+v", root.Attrs)
	}
	if !root.IsPublic() {
		t.Error("root should be public")
	}
	if got := InnerKind(crate.Index["1"].Inner); got != "struct" {
		t.Errorf("InnerKind = %q, want struct", got)
	}
}

func TestParse_VersionOutOfRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		version int
		remedy  string
	}{
		{MaxFormatVersion + 1, "update cargo-insert-docs"},
		{MinFormatVersion - 1, "upgrade your nightly toolchain"},
	}

	for _, tt := range tests {
		data := strings.Replace(minimalCrate, `"format_version": 45`, `"format_version": `+strconv.Itoa(tt.version), 1)
		_, err := Parse([]byte(data))
		if !errors.Is(err, ErrUnsupportedVersion) {
			t.Fatalf("version %d: got %v, want ErrUnsupportedVersion", tt.version, err)
		}
		var verr *VersionError
		if !errors.As(err, &verr) || verr.Actual != tt.version {
			t.Fatalf("version %d: expected VersionError, got %v", tt.version, err)
		}
		if !strings.Contains(err.Error(), tt.remedy) {
			t.Errorf("version %d: %q does not mention %q", tt.version, err.Error(), tt.remedy)
		}
	}
}

func TestParse_Malformed(t *testing.T) {
	t.Parallel()

	tests := []string{
		`not json`,
		`{"root": 0, "index": {}}`,
		`{"root": 7, "format_version": 45, "index": {"0": {"id": 0}}}`,
	}
	for _, in := range tests {
		if _, err := Parse([]byte(in)); !errors.Is(err, ErrMalformed) {
			t.Errorf("Parse(%q) = %v, want ErrMalformed", in, err)
		}
	}
}

func TestExternalCrateName(t *testing.T) {
	t.Parallel()

	crate := &RustdocCrate{ExternalCrates: map[string]ExternalCrate{
		"1": {Name: "tracing_core", HTMLRootURL: "https://docs.rs/tracing-core/0.1.36/x86_64-unknown-linux-gnu/"},
		"2": {Name: "local_dep"},
	}}

	if got := crate.ExternalCrateName(1); got != "tracing-core" {
		t.Errorf("got %q, want tracing-core", got)
	}
	if got := crate.ExternalCrateName(2); got != "local_dep" {
		t.Errorf("got %q, want local_dep", got)
	}
	if got := crate.ExternalCrateName(3); got != "" {
		t.Errorf("got %q, want empty", got)
	}
	if got := DocsRsVersion("https://docs.rs/tracing-core/0.1.36/"); got != "0.1.36" {
		t.Errorf("DocsRsVersion = %q", got)
	}
	if got := NormalizeRootURL("https://example.org/docs"); got != "https://example.org/docs/" {
		t.Errorf("NormalizeRootURL = %q", got)
	}
}
