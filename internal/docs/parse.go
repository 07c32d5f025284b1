package docs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Supported rustdoc JSON format versions. Items are addressed by integer
// ids in this range and attributes may be either strings or objects.
const (
	MinFormatVersion = 39
	MaxFormatVersion = 57
)

var (
	// ErrMalformed is returned for JSON that is not a usable rustdoc description.
	ErrMalformed = errors.New("malformed rustdoc json")

	// ErrUnsupportedVersion is returned when format_version is out of range.
	ErrUnsupportedVersion = errors.New("unsupported rustdoc json format version")
)

// VersionError carries the actual and supported format versions.
type VersionError struct {
	Actual int
	Min    int
	Max    int
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("cargo-insert-docs supports rustdoc json format versions %d to %d but rustdoc produced version %d; %s",
		e.Min, e.Max, e.Actual, e.Remedy())
}

// Remedy tells the user how to get a compatible toolchain.
func (e *VersionError) Remedy() string {
	if e.Actual > e.Max {
		return "update cargo-insert-docs or use an older nightly toolchain"
	}
	return "upgrade your nightly toolchain"
}

func (e *VersionError) Unwrap() error { return ErrUnsupportedVersion }

// Parse decodes rustdoc JSON bytes. The format version is checked before the
// rest of the document is decoded so unknown layouts are never misread.
func Parse(data []byte) (*RustdocCrate, error) {
	var header struct {
		FormatVersion *int `json:"format_version"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if header.FormatVersion == nil {
		return nil, fmt.Errorf("%w: missing format_version", ErrMalformed)
	}
	if v := *header.FormatVersion; v < MinFormatVersion || v > MaxFormatVersion {
		return nil, &VersionError{Actual: v, Min: MinFormatVersion, Max: MaxFormatVersion}
	}

	var crate RustdocCrate
	if err := json.Unmarshal(data, &crate); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, ok := crate.Index[strconv.Itoa(crate.Root)]; !ok {
		return nil, fmt.Errorf("%w: root item %d is not in the index", ErrMalformed, crate.Root)
	}
	return &crate, nil
}

// RootItem returns the crate root module item.
func (c *RustdocCrate) RootItem() *RustdocItem {
	item, ok := c.Index[strconv.Itoa(c.Root)]
	if !ok {
		return nil
	}
	return &item
}

// InnerKind extracts the kind from the inner JSON's single key.
func InnerKind(inner json.RawMessage) string {
	if len(inner) == 0 {
		return "unknown"
	}
	// unit-like kinds are encoded as a bare string
	var s string
	if err := json.Unmarshal(inner, &s); err == nil {
		return s
	}
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(inner, &outer); err != nil {
		return "unknown"
	}
	for k := range outer {
		return k
	}
	return "unknown"
}

// UnwrapInner returns the payload stored under the given kind key, or nil.
func UnwrapInner(inner json.RawMessage, kind string) json.RawMessage {
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(inner, &outer); err != nil {
		return nil
	}
	return outer[kind]
}
