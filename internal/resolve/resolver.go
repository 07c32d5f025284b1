// Package resolve turns intra-doc link text into documentation URLs using a
// crate's item graph.
//
// Resolution is best effort. Rustdoc's own `links` table is consulted first;
// otherwise the path is looked up lexically from the documented item's module
// outwards, then as a crate name, then as a primitive.
package resolve

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/jcdickinson/insertdocs/internal/itemgraph"
	"github.com/jcdickinson/insertdocs/internal/logging"
)

// Options configure a Resolver.
type Options struct {
	// Logger receives debug messages. Defaults to the package logger.
	Logger *log.Logger
}

// Resolver resolves references against one graph. It holds no mutable
// state and may be shared between goroutines.
type Resolver struct {
	g      *itemgraph.Graph
	logger *log.Logger
}

// New returns a resolver for g.
func New(g *itemgraph.Graph, opts Options) *Resolver {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	return &Resolver{g: g, logger: opts.Logger}
}

var primitives = map[string]bool{
	"bool": true, "char": true, "str": true,
	"i8": true, "i16": true, "i32": true, "i64": true, "i128": true, "isize": true,
	"u8": true, "u16": true, "u32": true, "u64": true, "u128": true, "usize": true,
	"f16": true, "f32": true, "f64": true, "f128": true,
	"array": true, "slice": true, "tuple": true, "unit": true, "never": true,
	"pointer": true, "reference": true, "fn": true,
}

// Resolve resolves link text as written in the docs of the item from.
func (r *Resolver) Resolve(text string, from itemgraph.ID) Result {
	ref, err := ParseReference(text)
	if err != nil {
		return Result{Reference: ref, Reason: ReasonNotAPath, cause: err}
	}

	if res, ok := r.fromLinks(ref, from); ok {
		return res
	}
	return r.lexical(ref, from)
}

// fromLinks uses the target rustdoc recorded for this exact text.
func (r *Resolver) fromLinks(ref Reference, from itemgraph.ID) (Result, bool) {
	item, ok := r.g.Item(from)
	if !ok {
		return Result{}, false
	}
	id, ok := item.Links[ref.Text]
	if !ok {
		return Result{}, false
	}
	target, err := r.g.ResolveReexport(id)
	if err != nil {
		return Result{}, false
	}
	res := r.finish(ref, []itemgraph.Target{target}, nil)
	if res.Reason == ReasonNoMatch {
		// rustdoc ids can dangle; fall back to our own lookup
		return Result{}, false
	}
	return res, true
}

func (r *Resolver) lexical(ref Reference, from itemgraph.ID) Result {
	cur, rest, limitErr := r.start(ref, from)
	if len(cur) == 0 {
		if len(ref.Path) == 1 && primitives[ref.Path[0]] && ref.accepts(itemgraph.KindPrimitive) {
			return Result{
				Reference: ref,
				URL:       fmt.Sprintf("https://doc.rust-lang.org/std/primitive.%s.html", ref.Path[0]),
			}
		}
		return r.fail(ref, limitErr, fmt.Sprintf("no item named %q in scope", ref.Path[0]))
	}

	for _, seg := range rest {
		var next []itemgraph.Target
		for _, t := range cur {
			found, err := r.g.Lookup(t, seg)
			if err != nil {
				limitErr = err
			}
			next = append(next, found...)
		}
		if len(next) == 0 {
			return r.fail(ref, limitErr, fmt.Sprintf("no item named %q", seg))
		}
		cur = next
	}
	return r.finish(ref, cur, limitErr)
}

// start resolves the first segment of a path and returns the remaining ones.
func (r *Resolver) start(ref Reference, from itemgraph.ID) ([]itemgraph.Target, []string, error) {
	path := ref.Path
	module := r.enclosingModule(from)

	switch path[0] {
	case "":
		roots, rest := r.crateRoot(path[1:])
		return roots, rest, nil
	case "crate":
		return []itemgraph.Target{{ID: r.g.Root()}}, path[1:], nil
	case "self":
		return []itemgraph.Target{{ID: module}}, path[1:], nil
	case "super":
		m, i := module, 0
		for ; i < len(path) && path[i] == "super"; i++ {
			parent, ok := r.parentModule(m)
			if !ok {
				return nil, nil, nil
			}
			m = parent
		}
		return []itemgraph.Target{{ID: m}}, path[i:], nil
	}

	var limitErr error
	scope := module
	for hops := 0; hops <= r.g.MaxHops(); hops++ {
		found, err := r.g.Lookup(itemgraph.Target{ID: scope}, path[0])
		if len(found) > 0 {
			return found, path[1:], nil
		}
		if err != nil {
			limitErr = err
		}
		parent, ok := r.parentModule(scope)
		if !ok {
			break
		}
		scope = parent
	}

	roots, rest := r.crateRoot(path)
	return roots, rest, limitErr
}

// crateRoot resolves a path starting with a crate name. Foreign crates
// without a root entry in the `paths` table are looked up by full path.
func (r *Resolver) crateRoot(path []string) ([]itemgraph.Target, []string) {
	if len(path) == 0 {
		return nil, nil
	}
	name := path[0]
	if name == r.g.CrateName() {
		return []itemgraph.Target{{ID: r.g.Root()}}, path[1:]
	}
	if !r.g.HasCrate(name) {
		return nil, nil
	}
	if roots := r.g.ForeignLookup(path[:1]); len(roots) > 0 {
		return roots, path[1:]
	}
	return r.g.ForeignLookup(path), nil
}

func (r *Resolver) enclosingModule(id itemgraph.ID) itemgraph.ID {
	for hops := 0; hops <= r.g.MaxHops(); hops++ {
		item, ok := r.g.Item(id)
		if !ok {
			break
		}
		if item.Kind == itemgraph.KindModule {
			return id
		}
		parent, ok := r.g.Parent(id)
		if !ok {
			break
		}
		id = parent
	}
	return r.g.Root()
}

func (r *Resolver) parentModule(module itemgraph.ID) (itemgraph.ID, bool) {
	parent, ok := r.g.Parent(module)
	if !ok {
		return 0, false
	}
	return r.enclosingModule(parent), true
}

// finish filters candidates by disambiguator and builds the URL of the one
// remaining candidate.
func (r *Resolver) finish(ref Reference, candidates []itemgraph.Target, limitErr error) Result {
	candidates = dedup(candidates)
	if len(candidates) == 0 {
		return r.fail(ref, limitErr, "")
	}

	var matching []itemgraph.Target
	var kinds []string
	for _, c := range candidates {
		kind := r.g.LinkKind(c.ID)
		kinds = append(kinds, kind.String())
		if ref.accepts(kind) {
			matching = append(matching, c)
		}
	}

	switch {
	case len(matching) == 0:
		return Result{
			Reference: ref,
			Reason:    ReasonDisambiguatorMismatch,
			Detail:    fmt.Sprintf("%s does not match %s", ref.Disambiguator, strings.Join(kinds, ", ")),
		}
	case len(matching) > 1:
		return Result{Reference: ref, Reason: ReasonAmbiguous, Detail: "candidates: " + r.describe(matching)}
	}

	page, anchor, err := r.g.URL(matching[0].ID)
	switch {
	case err == nil:
		return Result{Reference: ref, URL: page, Anchor: anchor}
	case errors.Is(err, itemgraph.ErrNotLinkable):
		r.logger.Debug("link points at an item without a page",
			logging.FieldLink, ref.Text,
			logging.FieldKind, r.g.LinkKind(matching[0].ID).String(),
			logging.FieldReason, err,
		)
		return Result{Reference: ref, Reason: ReasonNotLinkable, Detail: err.Error(), cause: err}
	default:
		return r.fail(ref, err, err.Error())
	}
}

func (r *Resolver) fail(ref Reference, err error, detail string) Result {
	reason := ReasonNoMatch
	if errors.Is(err, itemgraph.ErrRecursionLimit) {
		reason = ReasonRecursionLimit
		detail = err.Error()
	}
	return Result{Reference: ref, Reason: reason, Detail: detail, cause: err}
}

func (r *Resolver) describe(targets []itemgraph.Target) string {
	parts := make([]string, 0, len(targets))
	for _, t := range targets {
		kind := r.g.LinkKind(t.ID)
		if path, err := r.g.Path(t.ID); err == nil {
			parts = append(parts, kind.String()+" "+strings.Join(path, "::"))
		} else {
			parts = append(parts, fmt.Sprintf("%s #%d", kind, t.ID))
		}
	}
	return strings.Join(parts, ", ")
}

func dedup(in []itemgraph.Target) []itemgraph.Target {
	seen := make(map[itemgraph.Target]bool, len(in))
	var out []itemgraph.Target
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

// Scoped binds a Resolver to the item whose documentation is rewritten.
type Scoped struct {
	Resolver *Resolver
	From     itemgraph.ID
}

// ResolveLink returns the destination for link text. Text that is not an
// intra-doc path yields an empty href and no error; failures return the
// *Unresolved of Result.Err.
func (s Scoped) ResolveLink(text string) (string, error) {
	res := s.Resolver.Resolve(text, s.From)
	if res.Reason == ReasonNotAPath {
		return "", nil
	}
	if err := res.Err(); err != nil {
		return "", err
	}
	return res.Href(), nil
}
