// Package itemgraph builds a read-only graph of a crate's items from rustdoc
// JSON and answers path, parent, re-export and URL queries on it.
package itemgraph

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jcdickinson/insertdocs/internal/docs"
)

// DefaultMaxHops bounds re-export chains and glob enumeration.
const DefaultMaxHops = 64

var (
	// ErrMalformedInput is returned when the description references ids it does not define.
	ErrMalformedInput = errors.New("malformed item graph input")

	// ErrRecursionLimit is returned when a re-export chain exceeds the hop bound or loops.
	ErrRecursionLimit = errors.New("recursion limit exceeded")

	// ErrNotFound is returned when an id or name has no item.
	ErrNotFound = errors.New("item not found")

	// ErrNotLinkable is returned for items without a documentation page or anchor.
	ErrNotLinkable = errors.New("item is not linkable")
)

// ID identifies an item within one crate's graph.
type ID int

// Item is one local item of the crate.
type Item struct {
	ID       ID
	Name     string
	Kind     Kind
	Public   bool
	Inline   bool // #[doc(inline)]
	HasBody  bool // functions only
	Docs     string
	Links    map[string]ID
	Children []ID
	Impls    []ID // structs, enums, unions, primitives
	Use      *Use
	Trait    bool // impls only: trait impl rather than inherent impl
	Ignored  bool // impls only: synthetic or blanket impl
}

// Use is the re-export payload of a use item.
type Use struct {
	Name      string
	Source    string
	Target    ID
	HasTarget bool
	IsGlob    bool
}

// Foreign is an item known only from the `paths` table.
type Foreign struct {
	ID      ID
	CrateID int
	Path    []string
	Kind    Kind
}

// Options tune graph construction and traversal.
type Options struct {
	// MaxHops bounds re-export chains and nested glob enumeration.
	MaxHops int
	// MaxDepth bounds the module walk used to compute parents.
	MaxDepth int
	// Roots computes crate documentation roots.
	Roots DocRoots
}

// Graph is the item graph of one crate. It is not modified after Build.
type Graph struct {
	crateName string
	root      ID
	items     map[ID]*Item
	paths     map[ID]*Foreign
	byPath    map[string][]ID
	crates    map[string]string // crate name → html_root_url
	parents   map[ID]ID
	linkKinds map[ID]Kind
	opts      Options
}

var inlineAttrRe = regexp.MustCompile(`^#\[doc\(.*\binline\b.*\)\]$`)

// Build constructs the graph from a parsed rustdoc description.
func Build(crate *docs.RustdocCrate, opts Options) (*Graph, error) {
	if opts.MaxHops <= 0 {
		opts.MaxHops = DefaultMaxHops
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxHops
	}

	g := &Graph{
		root:      ID(crate.Root),
		items:     make(map[ID]*Item, len(crate.Index)),
		paths:     make(map[ID]*Foreign, len(crate.Paths)),
		byPath:    make(map[string][]ID),
		crates:    make(map[string]string),
		linkKinds: make(map[ID]Kind),
		opts:      opts,
	}

	for key, raw := range crate.Index {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: index key %q is not an id", ErrMalformedInput, key)
		}
		item, err := convertItem(ID(id), &raw)
		if err != nil {
			return nil, err
		}
		g.items[item.ID] = item
	}

	rootItem, ok := g.items[g.root]
	if !ok || rootItem.Kind != KindModule {
		return nil, fmt.Errorf("%w: root %d is not a module in the index", ErrMalformedInput, g.root)
	}
	g.crateName = rootItem.Name

	for key, summary := range crate.Paths {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: paths key %q is not an id", ErrMalformedInput, key)
		}
		f := &Foreign{ID: ID(id), CrateID: summary.CrateID, Path: summary.Path, Kind: ParseKind(summary.Kind)}
		g.paths[f.ID] = f
		joined := strings.Join(f.Path, "::")
		g.byPath[joined] = append(g.byPath[joined], f.ID)
	}
	for k := range g.byPath {
		sort.Slice(g.byPath[k], func(i, j int) bool { return g.byPath[k][i] < g.byPath[k][j] })
	}

	for _, ext := range crate.ExternalCrates {
		g.crates[ext.Name] = ext.HTMLRootURL
	}

	if err := g.checkReferences(); err != nil {
		return nil, err
	}

	g.computeParents()
	return g, nil
}

func convertItem(id ID, raw *docs.RustdocItem) (*Item, error) {
	kindName := docs.InnerKind(raw.Inner)
	item := &Item{
		ID:     id,
		Name:   raw.NameString(),
		Kind:   ParseKind(kindName),
		Public: raw.IsPublic(),
		Docs:   raw.DocString(),
	}

	for _, attr := range raw.Attrs {
		if inlineAttrRe.MatchString(strings.TrimSpace(attr.Text)) {
			item.Inline = true
		}
	}

	if len(raw.Links) > 0 {
		item.Links = make(map[string]ID, len(raw.Links))
		for text, target := range raw.Links {
			item.Links[text] = ID(target)
		}
	}

	payload := docs.UnwrapInner(raw.Inner, kindName)
	if err := decodePayload(item, kindName, payload); err != nil {
		return nil, fmt.Errorf("%w: item %d (%s): %v", ErrMalformedInput, id, kindName, err)
	}
	return item, nil
}

// decodePayload fills children, impls and the use target from the kind payload.
func decodePayload(item *Item, kindName string, payload json.RawMessage) error {
	if len(payload) == 0 {
		return nil
	}

	switch kindName {
	case "module":
		var m docs.Module
		if err := json.Unmarshal(payload, &m); err != nil {
			return err
		}
		item.Children = toIDs(m.Items)
	case "use":
		var u docs.Use
		if err := json.Unmarshal(payload, &u); err != nil {
			return err
		}
		item.Use = &Use{Name: u.Name, Source: u.Source, IsGlob: u.IsGlob}
		if u.ID != nil {
			item.Use.Target = ID(*u.ID)
			item.Use.HasTarget = true
		}
		if item.Name == "" {
			item.Name = u.Name
		}
	case "struct":
		var s struct {
			Kind  json.RawMessage `json:"kind"`
			Impls []int           `json:"impls"`
		}
		if err := json.Unmarshal(payload, &s); err != nil {
			return err
		}
		item.Children = fieldIDs(s.Kind, "plain")
		item.Impls = toIDs(s.Impls)
	case "union":
		var u struct {
			Fields []int `json:"fields"`
			Impls  []int `json:"impls"`
		}
		if err := json.Unmarshal(payload, &u); err != nil {
			return err
		}
		item.Children = toIDs(u.Fields)
		item.Impls = toIDs(u.Impls)
	case "enum":
		var e struct {
			Variants []int `json:"variants"`
			Impls    []int `json:"impls"`
		}
		if err := json.Unmarshal(payload, &e); err != nil {
			return err
		}
		item.Children = toIDs(e.Variants)
		item.Impls = toIDs(e.Impls)
	case "variant":
		var v struct {
			Kind json.RawMessage `json:"kind"`
		}
		if err := json.Unmarshal(payload, &v); err != nil {
			return err
		}
		item.Children = fieldIDs(v.Kind, "struct")
	case "trait":
		var t struct {
			Items []int `json:"items"`
		}
		if err := json.Unmarshal(payload, &t); err != nil {
			return err
		}
		item.Children = toIDs(t.Items)
	case "impl":
		var i struct {
			Items       []int           `json:"items"`
			Trait       json.RawMessage `json:"trait"`
			IsSynthetic bool            `json:"is_synthetic"`
			BlanketImpl json.RawMessage `json:"blanket_impl"`
		}
		if err := json.Unmarshal(payload, &i); err != nil {
			return err
		}
		item.Children = toIDs(i.Items)
		item.Trait = !isNull(i.Trait)
		item.Ignored = i.IsSynthetic || !isNull(i.BlanketImpl)
	case "primitive":
		var p struct {
			Name  string `json:"name"`
			Impls []int  `json:"impls"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		item.Impls = toIDs(p.Impls)
		if item.Name == "" {
			item.Name = p.Name
		}
	case "function":
		var f struct {
			HasBody bool `json:"has_body"`
		}
		if err := json.Unmarshal(payload, &f); err != nil {
			return err
		}
		item.HasBody = f.HasBody
	case "proc_macro":
		var p struct {
			Kind string `json:"kind"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		switch p.Kind {
		case "attr":
			item.Kind = KindProcAttribute
		case "derive":
			item.Kind = KindProcDerive
		}
	}
	return nil
}

// fieldIDs extracts field ids from a struct or variant kind. Tuple fields
// may be null when stripped.
func fieldIDs(kind json.RawMessage, namedKey string) []ID {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(kind, &tagged); err != nil {
		return nil
	}
	if named, ok := tagged[namedKey]; ok {
		var n struct {
			Fields []int `json:"fields"`
		}
		if err := json.Unmarshal(named, &n); err == nil {
			return toIDs(n.Fields)
		}
	}
	if tuple, ok := tagged["tuple"]; ok {
		var fields []*int
		if err := json.Unmarshal(tuple, &fields); err == nil {
			var ids []ID
			for _, f := range fields {
				if f != nil {
					ids = append(ids, ID(*f))
				}
			}
			return ids
		}
	}
	return nil
}

func toIDs(ints []int) []ID {
	if len(ints) == 0 {
		return nil
	}
	ids := make([]ID, len(ints))
	for i, v := range ints {
		ids[i] = ID(v)
	}
	return ids
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

// checkReferences rejects containment edges that point outside the index.
func (g *Graph) checkReferences() error {
	ids := g.sortedIDs()
	for _, id := range ids {
		item := g.items[id]
		for _, child := range append(append([]ID(nil), item.Children...), item.Impls...) {
			if _, ok := g.items[child]; !ok {
				return fmt.Errorf("%w: item %d (%s) references missing item %d", ErrMalformedInput, id, item.Name, child)
			}
		}
	}
	return nil
}

func (g *Graph) sortedIDs() []ID {
	ids := make([]ID, 0, len(g.items))
	for id := range g.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CrateName is the name of the documented crate.
func (g *Graph) CrateName() string { return g.crateName }

// Root is the id of the crate root module.
func (g *Graph) Root() ID { return g.root }

// MaxHops is the hop bound used for re-export chains.
func (g *Graph) MaxHops() int { return g.opts.MaxHops }

// Item returns the local item with the given id.
func (g *Graph) Item(id ID) (*Item, bool) {
	item, ok := g.items[id]
	return item, ok
}

// Foreign returns the `paths` summary of an id.
func (g *Graph) Foreign(id ID) (*Foreign, bool) {
	f, ok := g.paths[id]
	return f, ok
}

// IsLocal reports whether the id has a full item in the index.
func (g *Graph) IsLocal(id ID) bool {
	_, ok := g.items[id]
	return ok
}

// Children returns the direct children of a local item: module items,
// fields, variants or associated items.
func (g *Graph) Children(id ID) []ID {
	if item, ok := g.items[id]; ok {
		return item.Children
	}
	return nil
}

// ForeignLookup returns the items registered under a full path in the
// `paths` table.
func (g *Graph) ForeignLookup(path []string) []Target {
	return g.targetsAt(path)
}

// Parent returns the parent of a local item after dissolving use and impl
// parents.
func (g *Graph) Parent(id ID) (ID, bool) {
	p, ok := g.parents[id]
	return p, ok
}

// ExternalCrates returns the names of crates referenced by the description.
func (g *Graph) ExternalCrates() []string {
	names := make([]string, 0, len(g.crates))
	for name := range g.crates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasCrate reports whether name is the local crate or a known external crate.
func (g *Graph) HasCrate(name string) bool {
	if name == g.crateName {
		return true
	}
	_, ok := g.crates[name]
	return ok
}

// PathIDs returns the ids whose `paths` entry equals the given path.
func (g *Graph) PathIDs(path []string) []ID {
	return g.byPath[strings.Join(path, "::")]
}

// Path returns the full path of an item.
func (g *Graph) Path(id ID) ([]string, error) {
	segs, err := g.segments(id)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = s.name
	}
	return out, nil
}

// LinkKind is the kind used for URL construction. Functions become methods
// or required methods depending on their original parent.
func (g *Graph) LinkKind(id ID) Kind {
	if k, ok := g.linkKinds[id]; ok {
		return k
	}
	if item, ok := g.items[id]; ok {
		return item.Kind
	}
	if f, ok := g.paths[id]; ok {
		return f.Kind
	}
	return KindUnknown
}
