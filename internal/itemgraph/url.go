package itemgraph

import (
	"fmt"
	"strings"

	"github.com/jcdickinson/insertdocs/internal/docs"
)

// Package describes the cargo package that provides a crate.
type Package struct {
	Name      string
	Version   string
	Workspace bool
}

// DocRoots computes the documentation root URL of a crate.
type DocRoots struct {
	// Packages maps lib crate names to their packages.
	Packages map[string]Package
	// LinkToLatest links workspace crates to the `latest` docs.rs version.
	LinkToLatest bool
}

var stdCrates = map[string]bool{
	"core":       true,
	"alloc":      true,
	"std":        true,
	"proc_macro": true,
	"test":       true,
}

// URL returns the root URL for crate, ending in a slash.
func (r DocRoots) URL(crate, htmlRootURL string) string {
	if stdCrates[crate] {
		return "https://doc.rust-lang.org/" + crate + "/"
	}
	if pkg, ok := r.Packages[crate]; ok {
		version := pkg.Version
		if version == "" || (r.LinkToLatest && pkg.Workspace) {
			version = "latest"
		}
		return fmt.Sprintf("https://docs.rs/%s/%s/%s/", pkg.Name, version, crate)
	}
	if htmlRootURL != "" {
		return docs.NormalizeRootURL(htmlRootURL) + crate + "/"
	}
	return fmt.Sprintf("https://docs.rs/%s/latest/%s/", crate, crate)
}

type segment struct {
	name string
	kind Kind
}

// segments returns the path of an item from its crate down, with the kind
// of each step. Local items follow computed parents; items unreachable from
// the root and foreign items use the `paths` table.
func (g *Graph) segments(id ID) ([]segment, error) {
	if _, ok := g.items[id]; !ok {
		return g.foreignSegments(id)
	}

	var segs []segment
	cur := id
	for steps := 0; ; steps++ {
		if steps > g.opts.MaxDepth+1 {
			return nil, fmt.Errorf("%w: parent chain of item %d", ErrRecursionLimit, id)
		}
		item := g.items[cur]
		segs = append(segs, segment{name: item.Name, kind: g.LinkKind(cur)})
		if cur == g.root {
			break
		}
		parent, ok := g.parents[cur]
		if !ok {
			if _, known := g.paths[id]; known {
				return g.foreignSegments(id)
			}
			return nil, fmt.Errorf("%w: item %d (%s) is not reachable from the crate root", ErrNotFound, id, g.items[id].Name)
		}
		cur = parent
	}

	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return segs, nil
}

func (g *Graph) foreignSegments(id ID) ([]segment, error) {
	f, ok := g.paths[id]
	if !ok || len(f.Path) == 0 {
		return nil, fmt.Errorf("%w: id %d has no path", ErrNotFound, id)
	}

	segs := make([]segment, len(f.Path))
	segs[0] = segment{name: f.Path[0], kind: KindModule}
	for i := 1; i < len(f.Path)-1; i++ {
		// missing ancestors are assumed to be modules
		kind := KindModule
		if ids := g.PathIDs(f.Path[:i+1]); len(ids) > 0 {
			kind = g.paths[ids[0]].Kind
		}
		segs[i] = segment{name: f.Path[i], kind: kind}
	}
	if len(f.Path) > 1 {
		segs[len(segs)-1] = segment{name: f.Path[len(f.Path)-1], kind: f.Kind}
	}
	return segs, nil
}

// URL returns the documentation page of an item and the anchor within that
// page ("" for items with their own page).
func (g *Graph) URL(id ID) (page, anchor string, err error) {
	if kind := g.LinkKind(id); !kind.Linkable() {
		return "", "", fmt.Errorf("%w: %s", ErrNotLinkable, kind)
	}
	segs, err := g.segments(id)
	if err != nil {
		return "", "", err
	}

	crate := segs[0].name
	var b strings.Builder
	b.WriteString(g.opts.Roots.URL(crate, g.crates[crate]))

	for _, s := range segs[1:] {
		if anchor != "" && !s.kind.IsAssociated() {
			return "", "", fmt.Errorf("%w: %s below an associated item", ErrNotLinkable, s.kind)
		}
		switch {
		case s.kind == KindModule:
			b.WriteString(s.name + "/")
		case pagePrefix[s.kind] != "":
			b.WriteString(pagePrefix[s.kind] + "." + s.name + ".html")
		case anchor != "":
			// fields of enum variants
			anchor += ".field." + s.name
		case s.kind.IsAssociated():
			anchor = "#" + anchorPrefix[s.kind] + "." + s.name
		default:
			return "", "", fmt.Errorf("%w: %s %q", ErrNotLinkable, s.kind, s.name)
		}
	}

	page = b.String()
	if strings.HasSuffix(page, "/") {
		page += "index.html"
	}
	return page, anchor, nil
}
