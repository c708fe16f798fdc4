package schema

import (
	"encoding/json"
	"sort"
	"strconv"
)

// Default object keys for option entries shaped {code: ..., name: ...}.
// Pair-shaped entries always use positions 0 and 1.
const (
	DefaultValueKey   = "code"
	DefaultDisplayKey = "name"
)

// ChoiceTable maps raw coded values to display labels for one field.
// Labels are data: tables are built from the schema document at startup
// and never mutated afterwards.
type ChoiceTable map[string]string

// Build constructs a choice table for a field using the default option
// keys. An absent field yields an empty table, never an error.
func Build(doc Document, field string) ChoiceTable {
	return BuildKeyed(doc, field, DefaultValueKey, DefaultDisplayKey)
}

// BuildKeyed constructs a choice table with explicit object keys for
// option entries. Entries that fit neither the pair nor the object shape
// are skipped.
func BuildKeyed(doc Document, field, valueKey, displayKey string) ChoiceTable {
	table := ChoiceTable{}

	f, ok := doc[field]
	if !ok {
		return table
	}

	if valueKey == "" {
		valueKey = DefaultValueKey
	}
	if displayKey == "" {
		displayKey = DefaultDisplayKey
	}

	for _, raw := range f.Options {
		var pair []json.RawMessage
		if err := json.Unmarshal(raw, &pair); err == nil {
			if len(pair) < 2 {
				continue
			}
			code := scalarString(pair[0])
			if code == "" {
				continue
			}
			table[code] = scalarString(pair[1])
			continue
		}

		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			continue
		}
		code := scalarString(obj[valueKey])
		if code == "" {
			continue
		}
		table[code] = scalarString(obj[displayKey])
	}

	return table
}

// Lookup returns the display label for a code, or def for an empty or
// unknown code. It never fails.
func (t ChoiceTable) Lookup(code, def string) string {
	if code == "" {
		return def
	}
	if label, ok := t[code]; ok {
		return label
	}
	return def
}

// Has reports whether the table contains the code.
func (t ChoiceTable) Has(code string) bool {
	_, ok := t[code]
	return ok
}

// Invert returns the display-to-code mapping. Duplicate display labels
// resolve last-write-wins in key order, so inversion is deterministic.
func (t ChoiceTable) Invert() ChoiceTable {
	inverted := make(ChoiceTable, len(t))
	for _, code := range sortedKeys(t) {
		inverted[t[code]] = code
	}
	return inverted
}

// ChoiceSet holds one choice table per attribute field, built once from
// the schema document.
type ChoiceSet map[string]ChoiceTable

// BuildSet builds choice tables for every field in the document.
func BuildSet(doc Document) ChoiceSet {
	set := make(ChoiceSet, len(doc))
	for field := range doc {
		set[field] = Build(doc, field)
	}
	return set
}

// Table returns the table for a field, or an empty table when the field is
// unknown, so lookups always fall through to their defaults.
func (s ChoiceSet) Table(field string) ChoiceTable {
	if t, ok := s[field]; ok {
		return t
	}
	return ChoiceTable{}
}

// scalarString renders a raw JSON scalar as the string key form used by
// choice tables: strings as-is, numbers without a trailing ".0", booleans
// as "true"/"false".
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}

	return ""
}

func sortedKeys(t ChoiceTable) []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
