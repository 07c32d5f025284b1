package docs

import "encoding/json"

// RustdocCrate is the top-level structure of rustdoc JSON output.
type RustdocCrate struct {
	Root            int                       `json:"root"`
	CrateVersion    *string                   `json:"crate_version"`
	IncludesPrivate bool                      `json:"includes_private"`
	Index           map[string]RustdocItem    `json:"index"`
	Paths           map[string]RustdocSummary `json:"paths"`
	ExternalCrates  map[string]ExternalCrate  `json:"external_crates"`
	FormatVersion   int                       `json:"format_version"`
}

// ExternalCrate identifies a dependency crate by name.
type ExternalCrate struct {
	Name        string `json:"name"`
	HTMLRootURL string `json:"html_root_url"`
}

// RustdocItem is a single item in the rustdoc index.
type RustdocItem struct {
	ID         int             `json:"id"`
	CrateID    int             `json:"crate_id"`
	Name       *string         `json:"name"`
	Docs       *string         `json:"docs"`
	Links      map[string]int  `json:"links"` // markdown text → item ID (u32)
	Attrs      []Attribute     `json:"attrs"`
	Visibility json.RawMessage `json:"visibility"`
	Inner      json.RawMessage `json:"inner"`
}

// RustdocSummary provides the path and kind for an item.
type RustdocSummary struct {
	CrateID int      `json:"crate_id"`
	Path    []string `json:"path"`
	Kind    string   `json:"kind"`
}

// Attribute is one attribute of an item. Older format versions emit plain
// strings, newer ones emit tagged objects; only the source text is kept.
type Attribute struct {
	Text string
}

func (a *Attribute) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		a.Text = s
		return nil
	}

	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		// unit variants like "non_exhaustive" are plain strings and handled above
		return err
	}
	if other, ok := tagged["other"]; ok {
		return json.Unmarshal(other, &a.Text)
	}
	for k := range tagged {
		a.Text = k
	}
	return nil
}

// Use is the payload of a `use` item.
type Use struct {
	Source string `json:"source"`
	Name   string `json:"name"`
	ID     *int   `json:"id"`
	IsGlob bool   `json:"is_glob"`
}

// Module is the payload of a `module` item.
type Module struct {
	IsCrate bool  `json:"is_crate"`
	Items   []int `json:"items"`
}

// DocString returns the item's docs or "".
func (i *RustdocItem) DocString() string {
	if i.Docs == nil {
		return ""
	}
	return *i.Docs
}

// NameString returns the item's name or "".
func (i *RustdocItem) NameString() string {
	if i.Name == nil {
		return ""
	}
	return *i.Name
}

// IsPublic reports whether the item's visibility is `public`. Trait items
// carry `default` visibility and count as public.
func (i *RustdocItem) IsPublic() bool {
	var s string
	if err := json.Unmarshal(i.Visibility, &s); err != nil {
		return false
	}
	return s == "public" || s == "default"
}
