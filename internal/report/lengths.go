// Package report implements the survey report aggregation engine: length
// summary indexing, date-ordered attribute selection, the survey merge, and
// the filter/lengths codecs. Every operation is a pure function over its
// inputs; callers own any JSON strings carried between calls.
package report

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"road-survey-platform/internal/schema"
)

// knownPrimaryAttributes are the classifications every lengths blob is
// expected to cover. The parse fallback seeds all of them so rendering code
// never has to distinguish "missing" from "zero".
var knownPrimaryAttributes = []string{
	"municipality",
	"number_lanes",
	"pavement_class",
	"rainfall",
	"asset_class",
	"asset_condition",
	"surface_type",
	"technical_class",
	"terrain_class",
	"roughness",
	"source_roughness",
}

// KnownPrimaryAttributes returns the fixed list of primary classification
// names, in canonical order.
func KnownPrimaryAttributes() []string {
	out := make([]string, len(knownPrimaryAttributes))
	copy(out, knownPrimaryAttributes)
	return out
}

// Term is one bucket inside a primary classification: an aggregate length
// (or count) plus optional nested secondary breakdowns and an optional
// attached display title.
type Term struct {
	Value     float64
	Title     string
	Secondary map[string]map[string]float64
}

// MarshalJSON renders the wire shape {"value": n, "title": ..., <attr>: {...}}.
func (t Term) MarshalJSON() ([]byte, error) {
	obj := make(map[string]interface{}, 2+len(t.Secondary))
	obj["value"] = t.Value
	if t.Title != "" {
		obj["title"] = t.Title
	}
	for attr, terms := range t.Secondary {
		obj[attr] = terms
	}
	return json.Marshal(obj)
}

// UnmarshalJSON accepts the wire shape; secondary breakdown values may be
// bare numbers or {"value": n} objects.
func (t *Term) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	*t = Term{}
	for key, raw := range obj {
		switch key {
		case "value":
			var v float64
			if err := json.Unmarshal(raw, &v); err == nil {
				t.Value = v
			}
		case "title":
			var s string
			if err := json.Unmarshal(raw, &s); err == nil {
				t.Title = s
			}
		default:
			var nested map[string]json.RawMessage
			if err := json.Unmarshal(raw, &nested); err != nil {
				continue
			}
			terms := make(map[string]float64, len(nested))
			for termKey, termRaw := range nested {
				if v, ok := numericValue(termRaw); ok {
					terms[termKey] = v
				}
			}
			if len(terms) > 0 {
				if t.Secondary == nil {
					t.Secondary = make(map[string]map[string]float64)
				}
				t.Secondary[key] = terms
			}
		}
	}

	return nil
}

// numericValue reads a bare number or a {"value": n} object.
func numericValue(raw json.RawMessage) (float64, bool) {
	var v float64
	if err := json.Unmarshal(raw, &v); err == nil {
		return v, true
	}

	var obj struct {
		Value *float64 `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Value != nil {
		return *obj.Value, true
	}

	return 0, false
}

// LengthSummaryIndex maps primary attribute name -> term key -> aggregate
// bucket. Absence of a primary key means "no data", not zero.
type LengthSummaryIndex map[string]map[string]Term

// ParseLengths decodes a lengths JSON blob. Empty or malformed input yields
// the canonical empty structure: every known primary attribute mapped to
// {"None": {"value": 0}}.
func ParseLengths(raw string) LengthSummaryIndex {
	if strings.TrimSpace(raw) != "" {
		var idx LengthSummaryIndex
		if err := json.Unmarshal([]byte(raw), &idx); err == nil && idx != nil {
			return idx
		}
	}

	idx := make(LengthSummaryIndex, len(knownPrimaryAttributes))
	for _, attr := range knownPrimaryAttributes {
		idx[attr] = map[string]Term{"None": {Value: 0}}
	}
	return idx
}

// Encode renders the index back to its JSON string form.
func (idx LengthSummaryIndex) Encode() string {
	data, err := json.Marshal(idx)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Merge returns a new index summing this index with another, including
// nested secondary breakdowns. Neither input is modified.
func (idx LengthSummaryIndex) Merge(other LengthSummaryIndex) LengthSummaryIndex {
	out := make(LengthSummaryIndex, len(idx))
	for primary, terms := range idx {
		cp := make(map[string]Term, len(terms))
		for key, term := range terms {
			cp[key] = copyTerm(term)
		}
		out[primary] = cp
	}

	for primary, terms := range other {
		dst, ok := out[primary]
		if !ok {
			dst = make(map[string]Term, len(terms))
			out[primary] = dst
		}
		for key, term := range terms {
			existing, ok := dst[key]
			if !ok {
				dst[key] = copyTerm(term)
				continue
			}
			existing.Value += term.Value
			if existing.Title == "" {
				existing.Title = term.Title
			}
			for attr, nested := range term.Secondary {
				if existing.Secondary == nil {
					existing.Secondary = make(map[string]map[string]float64)
				}
				if existing.Secondary[attr] == nil {
					existing.Secondary[attr] = make(map[string]float64, len(nested))
				}
				for termKey, v := range nested {
					existing.Secondary[attr][termKey] += v
				}
			}
			dst[key] = existing
		}
	}

	return out
}

func copyTerm(t Term) Term {
	cp := Term{Value: t.Value, Title: t.Title}
	if t.Secondary != nil {
		cp.Secondary = make(map[string]map[string]float64, len(t.Secondary))
		for attr, nested := range t.Secondary {
			inner := make(map[string]float64, len(nested))
			for k, v := range nested {
				inner[k] = v
			}
			cp.Secondary[attr] = inner
		}
	}
	return cp
}

// Column describes one display column produced while extracting rows.
// Flattened secondary columns are named "<attribute>|<title>".
type Column struct {
	Name      string `json:"name"`
	Attribute string `json:"attribute"`
	Title     string `json:"title"`
}

// ColumnRegistry accumulates display-column descriptors as extraction
// discovers them. Registration is append-only: a name, once seen, keeps its
// first descriptor.
type ColumnRegistry struct {
	order  []string
	byName map[string]Column
}

// NewColumnRegistry creates an empty registry.
func NewColumnRegistry() *ColumnRegistry {
	return &ColumnRegistry{byName: make(map[string]Column)}
}

// Register records a column descriptor unless the name is already known.
func (r *ColumnRegistry) Register(col Column) {
	if _, ok := r.byName[col.Name]; ok {
		return
	}
	r.byName[col.Name] = col
	r.order = append(r.order, col.Name)
}

// Columns returns descriptors in first-seen order.
func (r *ColumnRegistry) Columns() []Column {
	cols := make([]Column, 0, len(r.order))
	for _, name := range r.order {
		cols = append(cols, r.byName[name])
	}
	return cols
}

// SummaryRow is one formatted output row for a primary attribute term.
type SummaryRow struct {
	Key       string            `json:"key"`
	Title     string            `json:"title"`
	Distance  string            `json:"distance"`
	Secondary map[string]string `json:"secondary,omitempty"`
}

// ExtractOptions configures row extraction.
type ExtractOptions struct {
	// Choices resolves term codes for the requested primary attribute.
	Choices schema.ChoiceTable
	// SecondaryChoices resolves term codes per secondary attribute.
	SecondaryChoices schema.ChoiceSet
	// UseRawKeyAsTitle falls back to the lowercased raw key when neither
	// the direct nor the inverted lookup resolves a title.
	UseRawKeyAsTitle bool
	// IsCount renders values as whole counts instead of scaled distances.
	IsCount bool
	// Registry collects display-column descriptors; optional.
	Registry *ColumnRegistry
}

// Extract produces formatted rows for one primary attribute, ordered by raw
// term key. Each nested secondary breakdown is flattened into an
// "<attribute>|<title>" column carrying its rendered value, and each newly
// seen column name is registered once.
func (idx LengthSummaryIndex) Extract(primary string, opts ExtractOptions) []SummaryRow {
	terms, ok := idx[primary]
	if !ok {
		return []SummaryRow{}
	}

	keys := make([]string, 0, len(terms))
	for key := range terms {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	if opts.Registry != nil {
		opts.Registry.Register(Column{Name: "title", Attribute: primary, Title: "Title"})
		opts.Registry.Register(Column{Name: "distance", Attribute: primary, Title: "Distance"})
	}

	rows := make([]SummaryRow, 0, len(terms))
	for _, key := range keys {
		term := terms[key]
		row := SummaryRow{
			Key:      key,
			Title:    resolveTitle(key, opts.Choices, opts.UseRawKeyAsTitle),
			Distance: RenderValue(term.Value, opts.IsCount),
		}

		if len(term.Secondary) > 0 {
			row.Secondary = make(map[string]string)
			for attr, nested := range term.Secondary {
				table := schema.ChoiceTable{}
				if opts.SecondaryChoices != nil {
					table = opts.SecondaryChoices.Table(attr)
				}
				for termKey, v := range nested {
					title := resolveTitle(termKey, table, true)
					name := attr + "|" + title
					row.Secondary[name] = RenderValue(v, opts.IsCount)
					if opts.Registry != nil {
						opts.Registry.Register(Column{Name: name, Attribute: attr, Title: title})
					}
				}
			}
		}

		rows = append(rows, row)
	}

	return rows
}

// resolveTitle maps a raw term key to its display title. When the direct
// lookup misses, the key is checked against the inverted table in case the
// upstream already sent display text instead of a code; failing that, the
// lowercased raw key is used when allowed. The result is always capitalized
// on its first letter.
func resolveTitle(key string, table schema.ChoiceTable, useRawKeyAsTitle bool) string {
	title := table.Lookup(key, "Unknown")
	if title == "Unknown" {
		if table.Invert().Has(key) {
			title = key
		} else if useRawKeyAsTitle {
			title = strings.ToLower(key)
		}
	}
	return capitalize(title)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

// RenderValue formats an aggregate value for display. Distances arrive as
// meter-scaled integers and render as kilometers with two decimals; counts
// render whole with no scaling.
func RenderValue(v float64, isCount bool) string {
	if isCount {
		return strconv.FormatFloat(math.Round(v), 'f', 0, 64)
	}
	scaled := math.Round(v/10.0) / 100.0
	return strconv.FormatFloat(scaled, 'f', 2, 64)
}

// SetKeyedTerms replaces the whole term set under a key in a lengths JSON
// string. A nil termValues deletes the key. Bare numbers normalize to
// {"value": n}; entries already shaped {"value": n} pass through; anything
// else is dropped. If nothing valid remains from a non-nil termValues the
// call is a no-op and the input is returned unchanged.
func SetKeyedTerms(lengths, key string, termValues map[string]interface{}) string {
	if key == "" {
		return lengths
	}

	idx := decodeLengthsForEdit(lengths)

	if termValues == nil {
		delete(idx, key)
		return idx.Encode()
	}

	terms := make(map[string]Term, len(termValues))
	for termKey, v := range termValues {
		if term, ok := normalizeTerm(v); ok {
			terms[termKey] = term
		}
	}

	if len(terms) == 0 {
		return lengths
	}

	idx[key] = terms
	return idx.Encode()
}

// AddTerm sets or deletes a single term under a key in a lengths JSON
// string. A nil value deletes the term, and deleting the last term under a
// key deletes the key. When adding, a title is attached if the lookup table
// resolves one for the term. Invalid values leave the input unchanged.
func AddTerm(lengths, key, term string, value interface{}, titles schema.ChoiceTable) string {
	if key == "" || term == "" {
		return lengths
	}

	idx := decodeLengthsForEdit(lengths)

	if value == nil {
		terms, ok := idx[key]
		if ok {
			delete(terms, term)
			if len(terms) == 0 {
				delete(idx, key)
			}
		}
		return idx.Encode()
	}

	t, ok := normalizeTerm(value)
	if !ok {
		return lengths
	}
	if title := titles.Lookup(term, ""); title != "" {
		t.Title = title
	}

	if idx[key] == nil {
		idx[key] = make(map[string]Term)
	}
	idx[key][term] = t
	return idx.Encode()
}

// decodeLengthsForEdit parses a lengths string for mutation. Unlike
// ParseLengths, codec edits start from an empty object on bad input rather
// than the canonical rendering fallback, so a cleared blob stays small.
func decodeLengthsForEdit(lengths string) LengthSummaryIndex {
	var idx LengthSummaryIndex
	if err := json.Unmarshal([]byte(lengths), &idx); err != nil || idx == nil {
		return LengthSummaryIndex{}
	}
	return idx
}

// normalizeTerm coerces a caller-supplied term value into a Term. Accepted
// shapes: bare numbers and maps carrying a numeric "value" entry.
func normalizeTerm(v interface{}) (Term, bool) {
	switch val := v.(type) {
	case float64:
		return Term{Value: val}, true
	case float32:
		return Term{Value: float64(val)}, true
	case int:
		return Term{Value: float64(val)}, true
	case int64:
		return Term{Value: float64(val)}, true
	case Term:
		return val, true
	case map[string]interface{}:
		inner, ok := val["value"]
		if !ok {
			return Term{}, false
		}
		t, ok := normalizeTerm(inner)
		if !ok {
			return Term{}, false
		}
		if title, ok := val["title"].(string); ok {
			t.Title = title
		}
		return t, true
	default:
		return Term{}, false
	}
}
