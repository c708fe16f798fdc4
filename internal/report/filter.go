package report

import (
	"encoding/json"
)

// SecondaryAttributeKey is the one filter key whose value is a nested
// attribute-to-terms mapping rather than a flat list.
const SecondaryAttributeKey = "secondary_attribute"

// The filter codec operates on the JSON string the caller persists between
// calls. Every mutator returns a new encoded string; invalid input is a
// silent no-op that returns the input unchanged, never an error. Callers
// that care can diff input against output.

// reportFilter is the decoded filter state: list-valued criteria plus the
// nested secondary-attribute selection.
type reportFilter struct {
	items     map[string][]interface{}
	secondary map[string][]string
}

// ClearFilter returns the canonical empty filter string.
func ClearFilter() string {
	return `{"primary_attribute":[],"report_asset_type":[]}`
}

// SetFilterKey replaces the values stored under a key. For the secondary
// attribute key the value must be a map of attribute name to term list (nil
// deletes the key); for any other key scalars are wrapped into a
// single-element list. Anything else leaves the filter unchanged.
func SetFilterKey(filter, key string, values interface{}) string {
	if key == "" {
		return filter
	}

	f := decodeFilter(filter)

	if key == SecondaryAttributeKey {
		if values == nil {
			f.secondary = nil
			return f.encode()
		}
		nested, ok := secondaryMap(values)
		if !ok {
			return filter
		}
		f.secondary = nested
		return f.encode()
	}

	list, ok := normalizeFilterValues(values)
	if !ok {
		return filter
	}
	f.items[key] = list
	return f.encode()
}

// AddFilterItem appends a single value to the list under a key, creating
// the list if absent and skipping values already present. The secondary
// attribute key is rejected here; it is only settable wholesale via
// SetFilterKey. Non string/number values leave the filter unchanged.
func AddFilterItem(filter, key string, value interface{}) string {
	if key == "" || key == SecondaryAttributeKey {
		return filter
	}

	v, ok := normalizeFilterValue(value)
	if !ok {
		return filter
	}

	f := decodeFilter(filter)
	for _, existing := range f.items[key] {
		if existing == v {
			return f.encode()
		}
	}
	f.items[key] = append(f.items[key], v)
	return f.encode()
}

// decodeFilter parses a filter string; malformed input decodes as an empty
// filter. Scalar values stored by older writers are wrapped into lists on
// read so the list invariant holds everywhere downstream.
func decodeFilter(filter string) reportFilter {
	f := reportFilter{items: map[string][]interface{}{}}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(filter), &raw); err != nil {
		return f
	}

	for key, msg := range raw {
		if key == SecondaryAttributeKey {
			var nested map[string][]string
			if err := json.Unmarshal(msg, &nested); err == nil {
				f.secondary = nested
			}
			continue
		}

		var list []interface{}
		if err := json.Unmarshal(msg, &list); err == nil {
			kept := make([]interface{}, 0, len(list))
			for _, v := range list {
				if nv, ok := normalizeFilterValue(v); ok {
					kept = append(kept, nv)
				}
			}
			f.items[key] = kept
			continue
		}

		var scalar interface{}
		if err := json.Unmarshal(msg, &scalar); err == nil {
			if nv, ok := normalizeFilterValue(scalar); ok {
				f.items[key] = []interface{}{nv}
			}
		}
	}

	return f
}

func (f reportFilter) encode() string {
	out := make(map[string]interface{}, len(f.items)+1)
	for key, list := range f.items {
		out[key] = list
	}
	if f.secondary != nil {
		out[SecondaryAttributeKey] = f.secondary
	}

	data, err := json.Marshal(out)
	if err != nil {
		return ClearFilter()
	}
	return string(data)
}

// normalizeFilterValue admits strings and numbers, converting all numeric
// forms to float64 so de-duplication and encoding are consistent.
func normalizeFilterValue(v interface{}) (interface{}, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	default:
		return nil, false
	}
}

// normalizeFilterValues admits a scalar (wrapped to a one-element list) or
// a list of scalars; a nil value stores an empty list, mirroring the
// cleared state.
func normalizeFilterValues(values interface{}) ([]interface{}, bool) {
	if values == nil {
		return []interface{}{}, true
	}

	switch list := values.(type) {
	case []interface{}:
		out := make([]interface{}, 0, len(list))
		for _, v := range list {
			nv, ok := normalizeFilterValue(v)
			if !ok {
				return nil, false
			}
			out = append(out, nv)
		}
		return out, true
	case []string:
		out := make([]interface{}, 0, len(list))
		for _, v := range list {
			out = append(out, v)
		}
		return out, true
	default:
		nv, ok := normalizeFilterValue(values)
		if !ok {
			return nil, false
		}
		return []interface{}{nv}, true
	}
}

// secondaryMap coerces a caller value into the nested secondary-attribute
// shape: attribute name -> list of term strings.
func secondaryMap(values interface{}) (map[string][]string, bool) {
	switch m := values.(type) {
	case map[string][]string:
		out := make(map[string][]string, len(m))
		for k, v := range m {
			out[k] = append([]string(nil), v...)
		}
		return out, true
	case map[string]interface{}:
		out := make(map[string][]string, len(m))
		for k, v := range m {
			list, ok := v.([]interface{})
			if !ok {
				return nil, false
			}
			terms := make([]string, 0, len(list))
			for _, item := range list {
				s, ok := item.(string)
				if !ok {
					return nil, false
				}
				terms = append(terms, s)
			}
			out[k] = terms
		}
		return out, true
	default:
		return nil, false
	}
}
