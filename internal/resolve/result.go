package resolve

import "fmt"

// Reason tells why a reference did not resolve.
type Reason int

const (
	// ReasonNone marks a resolved reference.
	ReasonNone Reason = iota
	ReasonNotAPath
	ReasonNoMatch
	ReasonAmbiguous
	ReasonRecursionLimit
	ReasonDisambiguatorMismatch
	ReasonNotLinkable
)

var reasonNames = [...]string{
	ReasonNone:                  "resolved",
	ReasonNotAPath:              "not an intra-doc path",
	ReasonNoMatch:               "no matching item",
	ReasonAmbiguous:             "ambiguous",
	ReasonRecursionLimit:        "recursion limit exceeded",
	ReasonDisambiguatorMismatch: "disambiguator mismatch",
	ReasonNotLinkable:           "item is not linkable",
}

func (r Reason) String() string {
	if int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// Result is the outcome of resolving one reference. A zero Reason means the
// reference resolved to URL plus Anchor.
type Result struct {
	Reference Reference
	URL       string
	Anchor    string
	Reason    Reason
	// Detail explains a failure, e.g. the candidates of an ambiguous link.
	Detail string

	cause error
}

// OK reports whether the reference resolved.
func (r Result) OK() bool { return r.Reason == ReasonNone }

// Href is the final link destination. A fragment written in the reference
// replaces the item anchor.
func (r Result) Href() string {
	if r.Reference.Fragment != "" {
		return r.URL + "#" + r.Reference.Fragment
	}
	return r.URL + r.Anchor
}

// Err returns nil for resolved references, an error wrapping ErrNotAPath
// for text that is not a path, and an *Unresolved otherwise.
func (r Result) Err() error {
	switch r.Reason {
	case ReasonNone:
		return nil
	case ReasonNotAPath:
		return r.cause
	default:
		return &Unresolved{Text: r.Reference.Text, Reason: r.Reason, Detail: r.Detail, Cause: r.cause}
	}
}

// Unresolved is the error form of a failed resolution.
type Unresolved struct {
	Text   string
	Reason Reason
	Detail string
	Cause  error
}

func (e *Unresolved) Error() string {
	msg := fmt.Sprintf("unresolved link %q: %s", e.Text, e.Reason)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *Unresolved) Unwrap() error { return e.Cause }
