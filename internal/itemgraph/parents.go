package itemgraph

import "sort"

// parentCandidate is one way of reaching an item from the root.
type parentCandidate struct {
	id           ID
	depth        int
	nonInlineUse bool // reached through a use without #[doc(inline)]
}

// betterThan reports whether c should replace other. A non-inline use is
// replaced by any later candidate, including another non-inline use, and
// never replaces anything itself. Otherwise the smaller depth wins.
func (c parentCandidate) betterThan(other parentCandidate) bool {
	if c.nonInlineUse || other.nonInlineUse {
		return other.nonInlineUse
	}
	return c.depth < other.depth
}

// computeParents walks the containment graph breadth first from the root.
// Every item is expanded at most once, at its smallest depth, and never
// beyond MaxDepth. Use and impl parents are then dissolved so each item
// points at the module, type or trait it is documented under.
func (g *Graph) computeParents() {
	candidates := make(map[ID]parentCandidate)
	expanded := make(map[ID]bool)

	type entry struct {
		id    ID
		depth int
	}
	// 0-1 BFS: uses do not add depth, so they are pushed to the front
	queue := []entry{{g.root, 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if expanded[cur.id] || cur.depth > g.opts.MaxDepth {
			continue
		}
		expanded[cur.id] = true

		parent, ok := g.items[cur.id]
		if !ok {
			continue
		}
		isUse := parent.Kind == KindUse
		cand := parentCandidate{id: cur.id, depth: cur.depth, nonInlineUse: isUse && !parent.Inline}

		for _, child := range g.containedIDs(parent) {
			childItem, ok := g.items[child]
			if !ok || child == g.root {
				continue
			}

			if prev, seen := candidates[child]; !seen || cand.betterThan(prev) {
				candidates[child] = cand
			}

			if isUse || childItem.Kind == KindUse {
				queue = append([]entry{{child, cur.depth}}, queue...)
			} else {
				queue = append(queue, entry{child, cur.depth + 1})
			}
		}
	}

	g.parents = make(map[ID]ID, len(candidates))
	for _, child := range sortedKeys(candidates) {
		childItem := g.items[child]
		if childItem.Kind == KindUse || childItem.Kind == KindImpl {
			continue
		}

		parentID := candidates[child].id
		parentItem := g.items[parentID]
		linkKind := childItem.Kind
		if childItem.Kind == KindFunction {
			switch parentItem.Kind {
			case KindImpl:
				linkKind = KindMethod
			case KindTrait:
				if childItem.HasBody {
					linkKind = KindMethod
				} else {
					linkKind = KindTyMethod
				}
			}
		}

		for hops := 0; hops <= g.opts.MaxDepth; hops++ {
			p := g.items[parentID]
			if p.Kind != KindUse && p.Kind != KindImpl {
				break
			}
			grand, ok := candidates[parentID]
			if !ok {
				break
			}
			parentID = grand.id
		}

		g.parents[child] = parentID
		if linkKind != childItem.Kind {
			g.linkKinds[child] = linkKind
		}
	}
}

// containedIDs lists the items reachable from an item during the parent walk.
func (g *Graph) containedIDs(item *Item) []ID {
	switch item.Kind {
	case KindUse:
		if item.Use == nil || !item.Use.HasTarget {
			return nil
		}
		if !item.Use.IsGlob {
			return []ID{item.Use.Target}
		}
		target, ok := g.items[item.Use.Target]
		if !ok || target.Kind != KindModule {
			return nil
		}
		return target.Children
	case KindTrait, KindModule, KindImpl, KindVariant:
		return item.Children
	default:
		var ids []ID
		ids = append(ids, item.Children...)
		for _, impl := range item.Impls {
			if implItem, ok := g.items[impl]; ok && !implItem.Ignored {
				ids = append(ids, impl)
			}
		}
		return ids
	}
}

func sortedKeys[V any](m map[ID]V) []ID {
	keys := make([]ID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
