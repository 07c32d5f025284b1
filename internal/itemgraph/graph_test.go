package itemgraph

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcdickinson/insertdocs/internal/docs"
)

// fixture builds rustdoc descriptions by hand.
type fixture struct {
	crate *docs.RustdocCrate
}

func newFixture(name string, rootItems ...int) *fixture {
	f := &fixture{crate: &docs.RustdocCrate{
		Root:           0,
		FormatVersion:  45,
		Index:          map[string]docs.RustdocItem{},
		Paths:          map[string]docs.RustdocSummary{},
		ExternalCrates: map[string]docs.ExternalCrate{},
	}}
	f.add(0, name, "module", map[string]any{"is_crate": true, "items": rootItems})
	f.path(0, 0, "module", name)
	return f
}

func (f *fixture) add(id int, name, kind string, payload any, attrs ...string) {
	inner, err := json.Marshal(map[string]any{kind: payload})
	if err != nil {
		panic(err)
	}
	item := docs.RustdocItem{
		ID:         id,
		Visibility: json.RawMessage(`"public"`),
		Inner:      inner,
	}
	if name != "" {
		item.Name = &name
	}
	for _, a := range attrs {
		item.Attrs = append(item.Attrs, docs.Attribute{Text: a})
	}
	f.crate.Index[strconv.Itoa(id)] = item
}

func (f *fixture) path(id, crateID int, kind string, path ...string) {
	f.crate.Paths[strconv.Itoa(id)] = docs.RustdocSummary{CrateID: crateID, Path: path, Kind: kind}
}

func (f *fixture) use(id int, name, source string, target *int, glob bool) {
	f.add(id, "", "use", map[string]any{"name": name, "source": source, "id": target, "is_glob": glob})
}

func ptr(i int) *int { return &i }

// sampleCrate:
//
//	mycrate
//	├── struct Image { width }     impl Image { fn new }   impl Debug for Image { fn fmt }
//	├── mod formats
//	│   ├── enum Format { Png }
//	│   └── use crate::util::*     (util is private: struct Helper)
//	├── trait Draw { fn draw; fn size() {} }
//	├── use crate::formats::Format as Reexported
//	├── use Loop (cycle)
//	└── use std::collections::HashMap
func sampleCrate() *fixture {
	f := newFixture("mycrate", 1, 2, 3, 10, 20, 30)

	f.add(1, "Image", "struct", map[string]any{
		"kind":  map[string]any{"plain": map[string]any{"fields": []int{4}}},
		"impls": []int{5, 6, 9},
	})
	f.add(4, "width", "struct_field", map[string]any{})
	f.add(5, "", "impl", map[string]any{"items": []int{7}, "trait": nil})
	f.add(6, "", "impl", map[string]any{"items": []int{8}, "trait": map[string]any{"path": "Debug"}})
	f.add(9, "", "impl", map[string]any{"items": []int{}, "trait": map[string]any{"path": "Send"}, "is_synthetic": true})
	f.add(7, "new", "function", map[string]any{"has_body": true})
	f.add(8, "fmt", "function", map[string]any{"has_body": true})

	f.add(2, "formats", "module", map[string]any{"items": []int{11, 12}})
	f.add(11, "Format", "enum", map[string]any{"variants": []int{13}, "impls": []int{}})
	f.add(13, "Png", "variant", map[string]any{"kind": "plain"})
	f.use(12, "util", "crate::util", ptr(14), true)
	f.add(14, "util", "module", map[string]any{"items": []int{15}})
	f.add(15, "Helper", "struct", map[string]any{"kind": "unit", "impls": []int{}})

	f.add(3, "Draw", "trait", map[string]any{"items": []int{16, 17}})
	f.add(16, "draw", "function", map[string]any{"has_body": false})
	f.add(17, "size", "function", map[string]any{"has_body": true})

	f.use(10, "Reexported", "crate::formats::Format", ptr(11), false)
	f.use(20, "Loop", "crate::Loop2", ptr(21), false)
	f.use(21, "Loop2", "crate::Loop", ptr(20), false)

	f.use(30, "HashMap", "std::collections::HashMap", ptr(100), false)
	f.path(100, 1, "struct", "std", "collections", "hash_map", "HashMap")
	f.path(101, 1, "module", "std", "collections")
	f.crate.ExternalCrates["1"] = docs.ExternalCrate{Name: "std", HTMLRootURL: "https://doc.rust-lang.org/nightly/"}
	f.path(200, 2, "trait", "serde", "Serialize")
	f.crate.ExternalCrates["2"] = docs.ExternalCrate{Name: "serde", HTMLRootURL: "https://docs.rs/serde/1.0.200/"}
	return f
}

func buildSample(t *testing.T, opts Options) *Graph {
	t.Helper()
	g, err := Build(sampleCrate().crate, opts)
	require.NoError(t, err)
	return g
}

func TestBuild(t *testing.T) {
	t.Parallel()

	g := buildSample(t, Options{})
	assert.Equal(t, "mycrate", g.CrateName())
	assert.Equal(t, ID(0), g.Root())
	assert.Equal(t, DefaultMaxHops, g.MaxHops())
	assert.Equal(t, []string{"serde", "std"}, g.ExternalCrates())
	assert.True(t, g.HasCrate("mycrate"))
	assert.True(t, g.HasCrate("serde"))
	assert.False(t, g.HasCrate("tokio"))

	item, ok := g.Item(1)
	require.True(t, ok)
	assert.Equal(t, KindStruct, item.Kind)
	assert.Equal(t, []ID{4}, g.Children(1))

	impl, _ := g.Item(9)
	assert.True(t, impl.Ignored)
	assert.True(t, impl.Trait)
}

func TestBuild_DanglingReference(t *testing.T) {
	t.Parallel()

	f := newFixture("broken", 1, 999)
	f.add(1, "Thing", "struct", map[string]any{"kind": "unit", "impls": []int{}})

	_, err := Build(f.crate, Options{})
	require.ErrorIs(t, err, ErrMalformedInput)
}

func TestBuild_RootNotModule(t *testing.T) {
	t.Parallel()

	f := newFixture("broken")
	f.add(0, "broken", "struct", map[string]any{"kind": "unit", "impls": []int{}})

	_, err := Build(f.crate, Options{})
	require.ErrorIs(t, err, ErrMalformedInput)
}

func TestParents(t *testing.T) {
	t.Parallel()

	g := buildSample(t, Options{})

	tests := []struct {
		name   string
		child  ID
		parent ID
	}{
		{"module item", 1, 0},
		{"field", 4, 1},
		{"inherent method dissolves impl", 7, 1},
		{"trait impl method dissolves impl", 8, 1},
		{"module beats non-inline use", 11, 2},
		{"glob import dissolves use", 15, 2},
		{"trait item", 16, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, ok := g.Parent(tt.child)
			require.True(t, ok)
			assert.Equal(t, tt.parent, p)
		})
	}

	_, ok := g.Parent(0)
	assert.False(t, ok, "root has no parent")

	assert.Equal(t, KindMethod, g.LinkKind(7))
	assert.Equal(t, KindMethod, g.LinkKind(17))
	assert.Equal(t, KindTyMethod, g.LinkKind(16))
}

func TestParents_InlineUseWins(t *testing.T) {
	t.Parallel()

	// inner is private and only reachable through an inline re-export
	f := newFixture("c", 2)
	f.add(1, "inner", "module", map[string]any{"items": []int{3}})
	f.add(3, "Deep", "struct", map[string]any{"kind": "unit", "impls": []int{}})
	f.add(2, "", "use", map[string]any{"name": "Deep", "source": "inner::Deep", "id": 3, "is_glob": false}, "#[doc(inline)]")

	g, err := Build(f.crate, Options{})
	require.NoError(t, err)

	p, ok := g.Parent(3)
	require.True(t, ok)
	assert.Equal(t, ID(0), p)

	page, _, err := g.URL(3)
	require.NoError(t, err)
	assert.Equal(t, "https://docs.rs/c/latest/c/struct.Deep.html", page)
}

func TestParents_LaterNonInlineUseWins(t *testing.T) {
	t.Parallel()

	// Deep is private and re-exported without #[doc(inline)] twice: from
	// the root first and from m, one level down, later
	f := newFixture("c", 2, 1)
	f.use(2, "Deep", "hidden::Deep", ptr(5), false)
	f.add(1, "m", "module", map[string]any{"items": []int{3}})
	f.use(3, "Deep", "crate::hidden::Deep", ptr(5), false)
	f.add(5, "Deep", "struct", map[string]any{"kind": "unit", "impls": []int{}})

	g, err := Build(f.crate, Options{})
	require.NoError(t, err)

	p, ok := g.Parent(5)
	require.True(t, ok)
	assert.Equal(t, ID(1), p)
}

func TestPath(t *testing.T) {
	t.Parallel()

	g := buildSample(t, Options{})

	path, err := g.Path(13)
	require.NoError(t, err)
	assert.Equal(t, []string{"mycrate", "formats", "Format", "Png"}, path)

	path, err = g.Path(100)
	require.NoError(t, err)
	assert.Equal(t, []string{"std", "collections", "hash_map", "HashMap"}, path)

	_, err = g.Path(12345)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolveReexport(t *testing.T) {
	t.Parallel()

	g := buildSample(t, Options{})

	target, err := g.ResolveReexport(10)
	require.NoError(t, err)
	assert.Equal(t, Target{ID: 11}, target)

	target, err = g.ResolveReexport(30)
	require.NoError(t, err)
	assert.Equal(t, Target{ID: 100, Foreign: true}, target)

	target, err = g.ResolveReexport(1)
	require.NoError(t, err)
	assert.Equal(t, Target{ID: 1}, target, "non-use items resolve to themselves")

	_, err = g.ResolveReexport(20)
	require.ErrorIs(t, err, ErrRecursionLimit)
}

func TestResolveReexport_HopLimit(t *testing.T) {
	t.Parallel()

	// a straight chain 50 -> 51 -> ... -> 54 -> Thing
	f := newFixture("chain", 50)
	f.add(1, "Thing", "struct", map[string]any{"kind": "unit", "impls": []int{}})
	for id := 50; id < 55; id++ {
		next := id + 1
		if id == 54 {
			next = 1
		}
		f.use(id, "Thing", "crate::Thing", ptr(next), false)
	}

	g, err := Build(f.crate, Options{MaxHops: 3})
	require.NoError(t, err)
	_, err = g.ResolveReexport(50)
	require.ErrorIs(t, err, ErrRecursionLimit)

	g, err = Build(f.crate, Options{MaxHops: 5})
	require.NoError(t, err)
	target, err := g.ResolveReexport(50)
	require.NoError(t, err)
	assert.Equal(t, Target{ID: 1}, target)
}

func TestResolveReexport_BySource(t *testing.T) {
	t.Parallel()

	f := newFixture("c", 1)
	f.use(1, "Serialize", "serde::Serialize", nil, false)
	f.path(200, 2, "trait", "serde", "Serialize")
	f.crate.ExternalCrates["2"] = docs.ExternalCrate{Name: "serde"}

	g, err := Build(f.crate, Options{})
	require.NoError(t, err)

	target, err := g.ResolveReexport(1)
	require.NoError(t, err)
	assert.Equal(t, Target{ID: 200, Foreign: true}, target)
}

func TestLookup(t *testing.T) {
	t.Parallel()

	g := buildSample(t, Options{})
	root := Target{ID: g.Root()}
	image := Target{ID: 1}

	tests := []struct {
		name  string
		scope Target
		text  string
		want  []Target
	}{
		{"module item", root, "Image", []Target{{ID: 1}}},
		{"re-export", root, "Reexported", []Target{{ID: 11}}},
		{"foreign re-export", root, "HashMap", []Target{{ID: 100, Foreign: true}}},
		{"glob import", Target{ID: 2}, "Helper", []Target{{ID: 15}}},
		{"field", image, "width", []Target{{ID: 4}}},
		{"inherent method", image, "new", []Target{{ID: 7}}},
		{"trait impl method", image, "fmt", []Target{{ID: 8}}},
		{"variant", Target{ID: 11}, "Png", []Target{{ID: 13}}},
		{"trait item", Target{ID: 3}, "draw", []Target{{ID: 16}}},
		{"foreign child", Target{ID: 101, Foreign: true}, "hash_map", nil},
		{"glob without match", Target{ID: 2}, "Missing", nil},
		{"no match", root, "Missing", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := g.Lookup(tt.scope, tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookup_ExplicitShadowsGlob(t *testing.T) {
	t.Parallel()

	f := newFixture("c", 1, 2)
	f.add(1, "Helper", "struct", map[string]any{"kind": "unit", "impls": []int{}})
	f.use(2, "other", "crate::other", ptr(3), true)
	f.add(3, "other", "module", map[string]any{"items": []int{4}})
	f.add(4, "Helper", "struct", map[string]any{"kind": "unit", "impls": []int{}})

	g, err := Build(f.crate, Options{})
	require.NoError(t, err)

	got, err := g.Lookup(Target{ID: 0}, "Helper")
	require.NoError(t, err)
	assert.Equal(t, []Target{{ID: 1}}, got)
}

func TestLookup_GlobCycle(t *testing.T) {
	t.Parallel()

	// mod a { pub use crate::b::*; } mod b { pub use crate::a::*; }
	f := newFixture("c", 40, 42)
	f.add(40, "a", "module", map[string]any{"items": []int{41}})
	f.use(41, "b", "crate::b", ptr(42), true)
	f.add(42, "b", "module", map[string]any{"items": []int{43}})
	f.use(43, "a", "crate::a", ptr(40), true)

	g, err := Build(f.crate, Options{})
	require.NoError(t, err)

	got, err := g.Lookup(Target{ID: 40}, "Anything")
	require.ErrorIs(t, err, ErrRecursionLimit)
	assert.Empty(t, got)
}

func TestLookup_ManySiblingGlobs(t *testing.T) {
	t.Parallel()

	// 70 `pub use mN::*;` in the root, only the last module has Target
	const n = 70
	var uses []int
	for i := 0; i < n; i++ {
		uses = append(uses, 1000+i)
	}
	f := newFixture("c", uses...)
	for i := 0; i < n; i++ {
		name := "m" + strconv.Itoa(i)
		f.use(1000+i, name, "crate::"+name, ptr(2000+i), true)
		var items []int
		if i == n-1 {
			items = []int{3000}
		}
		f.add(2000+i, name, "module", map[string]any{"items": items})
	}
	f.add(3000, "Target", "struct", map[string]any{"kind": "unit", "impls": []int{}})

	g, err := Build(f.crate, Options{})
	require.NoError(t, err)

	got, err := g.Lookup(Target{ID: 0}, "Target")
	require.NoError(t, err)
	assert.Equal(t, []Target{{ID: 3000}}, got)
}

func TestLookup_NestedGlobDepth(t *testing.T) {
	t.Parallel()

	// root -> m0::* -> m1::* -> ... -> m4::* -> m5 { struct Deep }
	f := newFixture("c", 100)
	for i := 0; i < 5; i++ {
		next := "m" + strconv.Itoa(i+1)
		f.use(100+i, next, "crate::"+next, ptr(201+i), true)
		if i < 4 {
			f.add(201+i, next, "module", map[string]any{"items": []int{101 + i}})
		}
	}
	f.add(205, "m5", "module", map[string]any{"items": []int{300}})
	f.add(300, "Deep", "struct", map[string]any{"kind": "unit", "impls": []int{}})

	g, err := Build(f.crate, Options{MaxHops: 3})
	require.NoError(t, err)
	_, err = g.Lookup(Target{ID: 0}, "Deep")
	require.ErrorIs(t, err, ErrRecursionLimit)

	g, err = Build(f.crate, Options{MaxHops: 5})
	require.NoError(t, err)
	got, err := g.Lookup(Target{ID: 0}, "Deep")
	require.NoError(t, err)
	assert.Equal(t, []Target{{ID: 300}}, got)
}

func TestURL(t *testing.T) {
	t.Parallel()

	g := buildSample(t, Options{Roots: DocRoots{
		Packages: map[string]Package{"mycrate": {Name: "my-crate", Version: "1.2.3"}},
	}})
	const base = "https://docs.rs/my-crate/1.2.3/mycrate/"

	tests := []struct {
		name   string
		id     ID
		page   string
		anchor string
	}{
		{"crate root", 0, base + "index.html", ""},
		{"module", 2, base + "formats/index.html", ""},
		{"struct", 1, base + "struct.Image.html", ""},
		{"enum", 11, base + "formats/enum.Format.html", ""},
		{"glob imported", 15, base + "formats/struct.Helper.html", ""},
		{"trait", 3, base + "trait.Draw.html", ""},
		{"field", 4, base + "struct.Image.html", "#structfield.width"},
		{"variant", 13, base + "formats/enum.Format.html", "#variant.Png"},
		{"inherent method", 7, base + "struct.Image.html", "#method.new"},
		{"required method", 16, base + "trait.Draw.html", "#tymethod.draw"},
		{"provided method", 17, base + "trait.Draw.html", "#method.size"},
		{"std", 100, "https://doc.rust-lang.org/std/collections/hash_map/struct.HashMap.html", ""},
		{"html root", 200, "https://docs.rs/serde/1.0.200/serde/trait.Serialize.html", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			page, anchor, err := g.URL(tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.page, page)
			assert.Equal(t, tt.anchor, anchor)
		})
	}
}

func TestURL_NotLinkable(t *testing.T) {
	t.Parallel()

	g := buildSample(t, Options{})
	for _, id := range []ID{5, 10} {
		_, _, err := g.URL(id)
		assert.ErrorIs(t, err, ErrNotLinkable, "id %d", id)
	}
}

func TestURL_VariantField(t *testing.T) {
	t.Parallel()

	f := newFixture("c", 1)
	f.add(1, "Shape", "enum", map[string]any{"variants": []int{2}, "impls": []int{}})
	f.add(2, "Circle", "variant", map[string]any{"kind": map[string]any{"struct": map[string]any{"fields": []int{3}}}})
	f.add(3, "radius", "struct_field", map[string]any{})

	g, err := Build(f.crate, Options{})
	require.NoError(t, err)

	page, anchor, err := g.URL(3)
	require.NoError(t, err)
	assert.Equal(t, "https://docs.rs/c/latest/c/enum.Shape.html", page)
	assert.Equal(t, "#variant.Circle.field.radius", anchor)
}

func TestDocRoots(t *testing.T) {
	t.Parallel()

	roots := DocRoots{Packages: map[string]Package{
		"my_crate": {Name: "my-crate", Version: "0.3.0", Workspace: true},
		"dep":      {Name: "dep", Version: "1.0.0"},
	}}

	assert.Equal(t, "https://doc.rust-lang.org/core/", roots.URL("core", "https://doc.rust-lang.org/nightly/"))
	assert.Equal(t, "https://docs.rs/my-crate/0.3.0/my_crate/", roots.URL("my_crate", ""))
	assert.Equal(t, "https://docs.rs/dep/1.0.0/dep/", roots.URL("dep", ""))
	assert.Equal(t, "https://example.com/docs/other/", roots.URL("other", "https://example.com/docs"))
	assert.Equal(t, "https://docs.rs/unknown/latest/unknown/", roots.URL("unknown", ""))

	roots.LinkToLatest = true
	assert.Equal(t, "https://docs.rs/my-crate/latest/my_crate/", roots.URL("my_crate", ""))
	assert.Equal(t, "https://docs.rs/dep/1.0.0/dep/", roots.URL("dep", ""), "only workspace members link to latest")
}
