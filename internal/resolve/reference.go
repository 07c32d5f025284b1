package resolve

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/jcdickinson/insertdocs/internal/itemgraph"
)

// ErrNotAPath is returned for link text that is not an intra-doc link at
// all, such as URLs, relative file paths or free text.
var ErrNotAPath = errors.New("not an intra-doc path")

// Reference is a parsed intra-doc link.
type Reference struct {
	// Text is the link text as written.
	Text string
	// Path holds the `::` separated segments. A leading `::` is kept as an
	// empty first segment.
	Path []string
	// Kinds restricts the accepted item kinds; nil accepts any kind.
	Kinds []itemgraph.Kind
	// Disambiguator is the prefix or suffix that set Kinds, for messages.
	Disambiguator string
	// Fragment is the part after `#`, without the `#`.
	Fragment string
}

var (
	kindsType = []itemgraph.Kind{
		itemgraph.KindStruct, itemgraph.KindEnum, itemgraph.KindUnion, itemgraph.KindTrait,
		itemgraph.KindTraitAlias, itemgraph.KindTypeAlias, itemgraph.KindAssocType,
		itemgraph.KindPrimitive, itemgraph.KindExternType,
	}
	kindsValue = []itemgraph.Kind{
		itemgraph.KindConstant, itemgraph.KindStatic, itemgraph.KindFunction,
		itemgraph.KindMethod, itemgraph.KindTyMethod, itemgraph.KindAssocConst,
	}
	kindsFunction = []itemgraph.Kind{itemgraph.KindFunction, itemgraph.KindMethod, itemgraph.KindTyMethod}
	kindsMacro    = []itemgraph.Kind{itemgraph.KindMacro, itemgraph.KindProcMacro}
)

var disambiguators = map[string][]itemgraph.Kind{
	"struct":    {itemgraph.KindStruct},
	"enum":      {itemgraph.KindEnum},
	"union":     {itemgraph.KindUnion},
	"trait":     {itemgraph.KindTrait, itemgraph.KindTraitAlias},
	"mod":       {itemgraph.KindModule},
	"module":    {itemgraph.KindModule},
	"fn":        kindsFunction,
	"function":  kindsFunction,
	"method":    kindsFunction,
	"const":     {itemgraph.KindConstant, itemgraph.KindAssocConst},
	"constant":  {itemgraph.KindConstant, itemgraph.KindAssocConst},
	"static":    {itemgraph.KindStatic},
	"type":      kindsType,
	"value":     kindsValue,
	"macro":     kindsMacro,
	"derive":    {itemgraph.KindProcDerive},
	"attr":      {itemgraph.KindProcAttribute},
	"prim":      {itemgraph.KindPrimitive},
	"primitive": {itemgraph.KindPrimitive},
	"field":     {itemgraph.KindStructField},
	"variant":   {itemgraph.KindVariant},
	"tyalias":   {itemgraph.KindTypeAlias},
	"typealias": {itemgraph.KindTypeAlias},
}

var macroSuffixes = []string{"!()", "![]", "!{}", "!"}

// ParseReference parses link text such as `crate::Foo::bar()`, `struct@Foo`
// or `Vec#guarantees`.
func ParseReference(text string) (Reference, error) {
	ref := Reference{Text: text}

	s := strings.TrimSpace(text)
	if len(s) >= 2 && strings.HasPrefix(s, "`") && strings.HasSuffix(s, "`") {
		s = strings.Trim(s, "`")
	}
	if s == "" {
		return ref, fmt.Errorf("%w: empty", ErrNotAPath)
	}
	if strings.Contains(s, "://") || strings.HasPrefix(s, "mailto:") {
		return ref, fmt.Errorf("%w: %q is a URL", ErrNotAPath, text)
	}

	if i := strings.IndexByte(s, '#'); i >= 0 {
		ref.Fragment = s[i+1:]
		s = s[:i]
		if s == "" {
			return ref, fmt.Errorf("%w: %q only has a fragment", ErrNotAPath, text)
		}
	}

	if i := strings.IndexByte(s, '@'); i >= 0 {
		prefix := s[:i]
		kinds, ok := disambiguators[prefix]
		if !ok {
			return ref, fmt.Errorf("%w: unknown disambiguator %q", ErrNotAPath, prefix)
		}
		ref.Kinds = kinds
		ref.Disambiguator = prefix + "@"
		s = s[i+1:]
	}

	for _, suffix := range macroSuffixes {
		if strings.HasSuffix(s, suffix) {
			if ref.Kinds == nil {
				ref.Kinds = kindsMacro
				ref.Disambiguator = suffix
			}
			s = strings.TrimSuffix(s, suffix)
			break
		}
	}
	if strings.HasSuffix(s, "()") {
		if ref.Kinds == nil {
			ref.Kinds = kindsFunction
			ref.Disambiguator = "()"
		}
		s = strings.TrimSuffix(s, "()")
	}

	s, err := stripGenerics(s)
	if err != nil {
		return ref, fmt.Errorf("%w: %q: %v", ErrNotAPath, text, err)
	}

	ref.Path = strings.Split(s, "::")
	for i, seg := range ref.Path {
		if i == 0 && seg == "" && len(ref.Path) > 1 {
			continue
		}
		if !isIdent(seg) {
			return ref, fmt.Errorf("%w: %q", ErrNotAPath, text)
		}
	}
	return ref, nil
}

// stripGenerics removes balanced `<...>` groups, so `Vec<T>::new` becomes `Vec::new`.
func stripGenerics(s string) (string, error) {
	if !strings.ContainsAny(s, "<>") {
		return s, nil
	}
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
			if depth < 0 {
				return "", errors.New("unbalanced generics")
			}
		default:
			if depth == 0 {
				b.WriteRune(r)
			}
		}
	}
	if depth != 0 {
		return "", errors.New("unbalanced generics")
	}
	return b.String(), nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}

// accepts reports whether the reference allows items of kind k.
func (r Reference) accepts(k itemgraph.Kind) bool {
	if r.Kinds == nil {
		return true
	}
	for _, want := range r.Kinds {
		if want == k {
			return true
		}
	}
	return false
}
