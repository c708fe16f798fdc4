package models

import (
	"encoding/json"
	"sort"
)

// Value is the payload of an attribute record: either a single raw scalar
// string, or, after a multi-attribute merge, a map of attribute name to
// raw value. Modeling the two shapes explicitly keeps callers from
// guessing what a bare string contains.
type Value struct {
	scalar    string
	composite map[string]string
}

// ScalarValue wraps a single raw value.
func ScalarValue(s string) Value {
	return Value{scalar: s}
}

// CompositeValue wraps a per-attribute value map. The map is copied so the
// Value stays immutable.
func CompositeValue(m map[string]string) Value {
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{composite: cp}
}

// ParseValue decodes a raw value string. A JSON object whose values are all
// strings is a composite (merged) value; anything else, including plain
// strings that merely look like JSON scalars, stays a scalar.
func ParseValue(raw string) Value {
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err == nil && m != nil {
		return Value{composite: m}
	}
	return Value{scalar: raw}
}

// IsComposite reports whether the value carries a per-attribute map.
func (v Value) IsComposite() bool {
	return v.composite != nil
}

// Scalar returns the raw scalar value; empty for composite values.
func (v Value) Scalar() string {
	return v.scalar
}

// Composite returns a copy of the per-attribute map; nil for scalars.
func (v Value) Composite() map[string]string {
	if v.composite == nil {
		return nil
	}
	cp := make(map[string]string, len(v.composite))
	for k, v := range v.composite {
		cp[k] = v
	}
	return cp
}

// Get returns the value for one attribute name. Scalars answer any name
// with their single value, matching how an unmerged record relates to its
// own primary attribute.
func (v Value) Get(attribute string) (string, bool) {
	if v.composite != nil {
		s, ok := v.composite[attribute]
		return s, ok
	}
	return v.scalar, v.scalar != ""
}

// Attributes lists the attribute names a composite value covers, sorted.
func (v Value) Attributes() []string {
	if v.composite == nil {
		return nil
	}
	names := make([]string, 0, len(v.composite))
	for k := range v.composite {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Encode renders the value back to its wire string form.
func (v Value) Encode() string {
	if v.composite == nil {
		return v.scalar
	}
	data, err := json.Marshal(v.composite)
	if err != nil {
		return ""
	}
	return string(data)
}
