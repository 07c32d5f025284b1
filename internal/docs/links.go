package docs

import (
	"regexp"
	"strconv"
	"strings"
)

// ExternalCrateName looks up the Cargo package name for a dependency by crate_id.
// Prefers the name extracted from html_root_url (e.g. "https://docs.rs/tracing-core/0.1.36/...")
// since the Name field uses the Rust lib name (underscores) which may differ from the
// Cargo name (hyphens). Falls back to the lib name if no docs.rs URL is present.
func (c *RustdocCrate) ExternalCrateName(crateID int) string {
	ext, ok := c.ExternalCrates[strconv.Itoa(crateID)]
	if !ok {
		return ""
	}
	if name := DocsRsPackage(ext.HTMLRootURL); name != "" {
		return name
	}
	return ext.Name
}

// docsRsRootRe splits a docs.rs html_root_url into package and version.
// Example: "https://docs.rs/tracing-core/0.1.36/x86_64-unknown-linux-gnu/" → "tracing-core", "0.1.36"
var docsRsRootRe = regexp.MustCompile(`^https?://docs\.rs/([^/]+)/([^/]+)/`)

// DocsRsPackage returns the package name of a docs.rs root URL, or "".
func DocsRsPackage(rootURL string) string {
	m := docsRsRootRe.FindStringSubmatch(rootURL)
	if len(m) < 3 {
		return ""
	}
	return m[1]
}

// DocsRsVersion returns the version of a docs.rs root URL, or "".
func DocsRsVersion(rootURL string) string {
	m := docsRsRootRe.FindStringSubmatch(rootURL)
	if len(m) < 3 {
		return ""
	}
	return m[2]
}

// NormalizeRootURL makes sure a documentation root ends in a slash.
func NormalizeRootURL(rootURL string) string {
	if rootURL == "" || strings.HasSuffix(rootURL, "/") {
		return rootURL
	}
	return rootURL + "/"
}
