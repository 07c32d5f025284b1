package itemgraph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Target is an item reached by a lookup: either a local item or an entry of
// the foreign table.
type Target struct {
	ID      ID
	Foreign bool
}

// walker carries the state of one lookup. Every re-export chain is bounded
// to MaxHops steps on its own: siblings restart from their caller's depth.
type walker struct {
	g      *Graph
	active map[ID]bool // globs on the current enumeration stack
	done   map[ID]bool // globs already enumerated
}

func (g *Graph) newWalker() *walker {
	return &walker{g: g, active: make(map[ID]bool), done: make(map[ID]bool)}
}

// step returns the depth one hop further down a chain.
func (w *walker) step(depth int) (int, error) {
	depth++
	if depth > w.g.opts.MaxHops {
		return depth, fmt.Errorf("%w: more than %d hops", ErrRecursionLimit, w.g.opts.MaxHops)
	}
	return depth, nil
}

// ResolveReexport follows a chain of use items to the item it finally names.
// Non-use ids resolve to themselves; glob uses resolve to themselves and are
// enumerated by Lookup.
func (g *Graph) ResolveReexport(id ID) (Target, error) {
	t, _, err := g.newWalker().follow(id, 0)
	return t, err
}

// follow resolves id starting at depth and returns the depth reached.
func (w *walker) follow(id ID, depth int) (Target, int, error) {
	seen := make(map[ID]bool)
	for {
		item, ok := w.g.items[id]
		if !ok {
			if _, ok := w.g.paths[id]; ok {
				return Target{ID: id, Foreign: true}, depth, nil
			}
			return Target{}, depth, fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		if item.Kind != KindUse || item.Use == nil || item.Use.IsGlob {
			return Target{ID: id}, depth, nil
		}
		if seen[id] {
			return Target{}, depth, fmt.Errorf("%w: re-export cycle through %q", ErrRecursionLimit, item.Name)
		}
		seen[id] = true
		var err error
		if depth, err = w.step(depth); err != nil {
			return Target{}, depth, err
		}
		if !item.Use.HasTarget {
			t, err := w.g.bySource(item.Use.Source)
			return t, depth, err
		}
		id = item.Use.Target
	}
}

// bySource finds the item a use without an id names by its source path.
func (g *Graph) bySource(source string) (Target, error) {
	path := g.absolutePath(source)
	ids := g.PathIDs(path)
	if len(ids) == 0 {
		return Target{}, fmt.Errorf("%w: %s", ErrNotFound, source)
	}
	return Target{ID: ids[0], Foreign: !g.IsLocal(ids[0])}, nil
}

// absolutePath rewrites a leading `crate` to the crate name.
func (g *Graph) absolutePath(source string) []string {
	path := strings.Split(source, "::")
	if len(path) > 0 && (path[0] == "crate" || path[0] == "$crate") {
		path[0] = g.crateName
	}
	return path
}

// Lookup returns the items named name inside scope. Modules are searched
// through their items, re-exports and glob imports; types and traits through
// their fields, variants and associated items. Explicit names shadow names
// brought in by globs. An empty result means no match.
func (g *Graph) Lookup(scope Target, name string) ([]Target, error) {
	return g.newWalker().lookup(scope, name, 0)
}

func (w *walker) lookup(scope Target, name string, depth int) ([]Target, error) {
	if scope.Foreign {
		return w.g.foreignChildren(scope.ID, name), nil
	}
	item, ok := w.g.items[scope.ID]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, scope.ID)
	}
	if item.Kind != KindModule {
		return w.g.members(item, name), nil
	}

	var direct, viaGlob []Target
	var limitErr error

	for _, child := range item.Children {
		c := w.g.items[child]
		if c.Kind != KindUse || c.Use == nil {
			if c.Name == name {
				direct = append(direct, Target{ID: child})
			}
			continue
		}

		if !c.Use.IsGlob {
			if c.Use.Name != name {
				continue
			}
			t, _, err := w.follow(child, depth)
			if err != nil {
				if errors.Is(err, ErrRecursionLimit) {
					limitErr = err
				}
				continue
			}
			direct = append(direct, t)
			continue
		}

		found, err := w.enumerateGlob(child, c.Use, name, depth)
		if err != nil {
			limitErr = err
		}
		viaGlob = append(viaGlob, found...)
	}

	if len(direct) > 0 {
		return dedupTargets(direct), nil
	}
	if len(viaGlob) > 0 {
		return dedupTargets(viaGlob), nil
	}
	return nil, limitErr
}

// enumerateGlob looks name up in the target of a glob import found at
// depth. The glob itself is one hop.
func (w *walker) enumerateGlob(id ID, use *Use, name string, depth int) ([]Target, error) {
	if w.active[id] {
		return nil, fmt.Errorf("%w: glob import cycle", ErrRecursionLimit)
	}
	if w.done[id] {
		return nil, nil
	}
	depth, err := w.step(depth)
	if err != nil {
		return nil, err
	}
	w.active[id] = true
	defer func() {
		delete(w.active, id)
		w.done[id] = true
	}()

	if !use.HasTarget {
		path := append(w.g.absolutePath(use.Source), name)
		return w.g.targetsAt(path), nil
	}

	scope, depth, err := w.follow(use.Target, depth)
	if err != nil {
		if errors.Is(err, ErrRecursionLimit) {
			return nil, err
		}
		return nil, nil
	}
	return w.lookup(scope, name, depth)
}

// members finds associated items of a type or trait by name. Inherent
// impls are searched before trait impls.
func (g *Graph) members(item *Item, name string) []Target {
	var out []Target
	for _, child := range item.Children {
		if c := g.items[child]; c.Name == name {
			out = append(out, Target{ID: child})
		}
	}
	if len(out) > 0 {
		return out
	}

	for _, wantTrait := range []bool{false, true} {
		for _, implID := range item.Impls {
			impl := g.items[implID]
			if impl.Ignored || impl.Trait != wantTrait {
				continue
			}
			for _, child := range impl.Children {
				if c, ok := g.items[child]; ok && c.Name == name {
					out = append(out, Target{ID: child})
				}
			}
		}
		if len(out) > 0 {
			return dedupTargets(out)
		}
	}
	return nil
}

// foreignChildren finds entries of the foreign table directly below a path.
func (g *Graph) foreignChildren(id ID, name string) []Target {
	f, ok := g.paths[id]
	if !ok {
		return nil
	}
	path := append(append([]string(nil), f.Path...), name)
	return g.targetsAt(path)
}

func (g *Graph) targetsAt(path []string) []Target {
	var out []Target
	for _, id := range g.PathIDs(path) {
		out = append(out, Target{ID: id, Foreign: !g.IsLocal(id)})
	}
	return out
}

func dedupTargets(in []Target) []Target {
	seen := make(map[Target]bool, len(in))
	out := in[:0:0]
	for _, t := range in {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Foreign != out[j].Foreign {
			return !out[i].Foreign
		}
		return out[i].ID < out[j].ID
	})
	return out
}
