package itemgraph

// Kind is the kind of an item in the graph.
type Kind int

const (
	KindUnknown Kind = iota
	KindModule
	KindExternCrate
	KindUse
	KindUnion
	KindStruct
	KindStructField
	KindEnum
	KindVariant
	KindFunction
	KindTypeAlias
	KindConstant
	KindTrait
	KindTraitAlias
	KindImpl
	KindStatic
	KindExternType
	KindMacro
	KindProcMacro
	KindProcAttribute
	KindProcDerive
	KindAssocConst
	KindAssocType
	KindPrimitive
	KindKeyword

	// KindMethod and KindTyMethod are inferred: a function inside an impl or
	// a provided trait method is a method, a trait method without a body is a
	// required method.
	KindMethod
	KindTyMethod
)

var kindNames = map[Kind]string{
	KindUnknown:       "unknown",
	KindModule:        "module",
	KindExternCrate:   "extern_crate",
	KindUse:           "use",
	KindUnion:         "union",
	KindStruct:        "struct",
	KindStructField:   "struct_field",
	KindEnum:          "enum",
	KindVariant:       "variant",
	KindFunction:      "function",
	KindTypeAlias:     "type_alias",
	KindConstant:      "constant",
	KindTrait:         "trait",
	KindTraitAlias:    "trait_alias",
	KindImpl:          "impl",
	KindStatic:        "static",
	KindExternType:    "extern_type",
	KindMacro:         "macro",
	KindProcMacro:     "proc_macro",
	KindProcAttribute: "proc_attribute",
	KindProcDerive:    "proc_derive",
	KindAssocConst:    "assoc_const",
	KindAssocType:     "assoc_type",
	KindPrimitive:     "primitive",
	KindKeyword:       "keyword",
	KindMethod:        "method",
	KindTyMethod:      "tymethod",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind maps a rustdoc kind name (as used by `paths` summaries and
// `inner` keys) to a Kind.
func ParseKind(s string) Kind {
	for k, name := range kindNames {
		if name == s {
			return k
		}
	}
	switch s {
	case "const":
		return KindConstant
	case "typedef":
		return KindTypeAlias
	case "foreign_type":
		return KindExternType
	}
	return KindUnknown
}

// pagePrefix is the file name prefix of kinds that get their own page.
var pagePrefix = map[Kind]string{
	KindUnion:         "union",
	KindStruct:        "struct",
	KindEnum:          "enum",
	KindFunction:      "fn",
	KindTrait:         "trait",
	KindTraitAlias:    "traitalias",
	KindTypeAlias:     "type",
	KindConstant:      "constant",
	KindStatic:        "static",
	KindExternType:    "foreigntype",
	KindMacro:         "macro",
	KindProcMacro:     "macro",
	KindPrimitive:     "primitive",
	KindProcAttribute: "attr",
	KindProcDerive:    "derive",
}

// anchorPrefix is the fragment prefix of kinds documented on their parent's page.
var anchorPrefix = map[Kind]string{
	KindStructField: "structfield",
	KindVariant:     "variant",
	KindMethod:      "method",
	KindTyMethod:    "tymethod",
	KindAssocConst:  "associatedconstant",
	KindAssocType:   "associatedtype",
}

// Linkable reports whether items of this kind have a documentation page or anchor.
func (k Kind) Linkable() bool {
	if k == KindModule {
		return true
	}
	_, page := pagePrefix[k]
	_, anchor := anchorPrefix[k]
	return page || anchor
}

// IsAssociated reports whether the kind is documented on its parent's page.
func (k Kind) IsAssociated() bool {
	_, ok := anchorPrefix[k]
	return ok
}
