package report

import (
	"reflect"
	"testing"

	"road-survey-platform/internal/schema"
)

func TestParseLengthsFallback(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty input", raw: ""},
		{name: "whitespace input", raw: "   "},
		{name: "malformed json", raw: "not json"},
		{name: "wrong shape", raw: `["a", "b"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := ParseLengths(tt.raw)

			if len(idx) != len(knownPrimaryAttributes) {
				t.Fatalf("fallback has %d attributes, want %d", len(idx), len(knownPrimaryAttributes))
			}
			for _, attr := range knownPrimaryAttributes {
				terms, ok := idx[attr]
				if !ok {
					t.Fatalf("fallback missing attribute %q", attr)
				}
				if !reflect.DeepEqual(terms, map[string]Term{"None": {Value: 0}}) {
					t.Errorf("fallback[%q] = %v, want None:{value:0}", attr, terms)
				}
			}
		})
	}
}

func TestParseLengthsFallbackDeterminism(t *testing.T) {
	a := ParseLengths("")
	b := ParseLengths("not json")
	if !reflect.DeepEqual(a, b) {
		t.Errorf("fallback for empty and malformed input differ: %v vs %v", a, b)
	}
}

func TestParseLengthsValid(t *testing.T) {
	raw := `{
		"surface_type": {
			"5": {"value": 12345, "road_status": {"o": 9000, "c": {"value": 3345}}},
			"2": {"value": 500}
		}
	}`

	idx := ParseLengths(raw)

	terms, ok := idx["surface_type"]
	if !ok {
		t.Fatal("surface_type missing after parse")
	}
	if terms["2"].Value != 500 {
		t.Errorf("terms[2].Value = %v, want 500", terms["2"].Value)
	}
	sec := terms["5"].Secondary["road_status"]
	if sec == nil {
		t.Fatal("road_status breakdown missing")
	}
	if sec["o"] != 9000 {
		t.Errorf("secondary o = %v, want 9000", sec["o"])
	}
	if sec["c"] != 3345 {
		t.Errorf("secondary c = %v, want 3345 (object-wrapped value)", sec["c"])
	}
}

func TestRenderValue(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		isCount bool
		want    string
	}{
		{name: "distance scales and rounds to 2 decimals", value: 12345, isCount: false, want: "12.35"},
		{name: "distance zero", value: 0, isCount: false, want: "0.00"},
		{name: "count renders whole with no scaling", value: 7, isCount: true, want: "7"},
		{name: "count rounds", value: 6.6, isCount: true, want: "7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderValue(tt.value, tt.isCount); got != tt.want {
				t.Errorf("RenderValue(%v, %v) = %q, want %q", tt.value, tt.isCount, got, tt.want)
			}
		})
	}
}

func TestExtract(t *testing.T) {
	idx := ParseLengths(`{
		"surface_type": {
			"5": {"value": 12345, "road_status": {"o": 9000}},
			"Asphalt": {"value": 1000},
			"mystery": {"value": 2000}
		}
	}`)

	choices := schema.ChoiceTable{"5": "Asphalt"}
	secondary := schema.ChoiceSet{"road_status": {"o": "Open"}}
	reg := NewColumnRegistry()

	rows := idx.Extract("surface_type", ExtractOptions{
		Choices:          choices,
		SecondaryChoices: secondary,
		UseRawKeyAsTitle: true,
		Registry:         reg,
	})

	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}

	// Rows are ordered by raw term key.
	byKey := map[string]SummaryRow{}
	for _, row := range rows {
		byKey[row.Key] = row
	}

	if got := byKey["5"].Title; got != "Asphalt" {
		t.Errorf("direct lookup title = %q, want Asphalt", got)
	}
	// Upstream sent the display label instead of the code: the inverted
	// table recognises it and the label stands as the title.
	if got := byKey["Asphalt"].Title; got != "Asphalt" {
		t.Errorf("inverted lookup title = %q, want Asphalt", got)
	}
	// Neither lookup resolves: lowercased raw key, capitalized.
	if got := byKey["mystery"].Title; got != "Mystery" {
		t.Errorf("raw key title = %q, want Mystery", got)
	}

	if got := byKey["5"].Distance; got != "12.35" {
		t.Errorf("distance = %q, want 12.35", got)
	}
	if got := byKey["5"].Secondary["road_status|Open"]; got != "9.00" {
		t.Errorf("flattened secondary = %q, want 9.00", got)
	}

	// The registry saw the flattened column exactly once, after the base
	// columns.
	cols := reg.Columns()
	names := make([]string, 0, len(cols))
	for _, c := range cols {
		names = append(names, c.Name)
	}
	want := []string{"title", "distance", "road_status|Open"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("registered columns = %v, want %v", names, want)
	}
}

func TestExtractUnknownWithoutRawFallback(t *testing.T) {
	idx := ParseLengths(`{"surface_type": {"mystery": {"value": 100}}}`)

	rows := idx.Extract("surface_type", ExtractOptions{Choices: schema.ChoiceTable{}})
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].Title != "Unknown" {
		t.Errorf("title = %q, want Unknown", rows[0].Title)
	}
}

func TestExtractMissingPrimary(t *testing.T) {
	idx := ParseLengths(`{"surface_type": {"5": {"value": 1}}}`)

	rows := idx.Extract("terrain_class", ExtractOptions{})
	if len(rows) != 0 {
		t.Errorf("got %d rows for absent attribute, want 0", len(rows))
	}
}

func TestColumnRegistryAppendOnly(t *testing.T) {
	reg := NewColumnRegistry()
	reg.Register(Column{Name: "road_status|Open", Attribute: "road_status", Title: "Open"})
	reg.Register(Column{Name: "road_status|Open", Attribute: "other", Title: "Other"})

	cols := reg.Columns()
	if len(cols) != 1 {
		t.Fatalf("got %d columns, want 1", len(cols))
	}
	if cols[0].Attribute != "road_status" {
		t.Errorf("first registration was overwritten: %+v", cols[0])
	}
}

func TestSetKeyedTerms(t *testing.T) {
	tests := []struct {
		name       string
		lengths    string
		key        string
		termValues map[string]interface{}
		wantSame   bool
		check      func(*testing.T, LengthSummaryIndex)
	}{
		{
			name:    "bare numbers are wrapped",
			lengths: "{}",
			key:     "surface_type",
			termValues: map[string]interface{}{
				"5": 1200.0,
			},
			check: func(t *testing.T, idx LengthSummaryIndex) {
				if idx["surface_type"]["5"].Value != 1200 {
					t.Errorf("value = %v, want 1200", idx["surface_type"]["5"].Value)
				}
			},
		},
		{
			name:    "shaped entries pass through and junk is dropped",
			lengths: "{}",
			key:     "surface_type",
			termValues: map[string]interface{}{
				"5":    map[string]interface{}{"value": 100.0},
				"junk": "nope",
			},
			check: func(t *testing.T, idx LengthSummaryIndex) {
				if len(idx["surface_type"]) != 1 {
					t.Errorf("terms = %v, want only key 5", idx["surface_type"])
				}
			},
		},
		{
			name:    "nothing valid is a no-op",
			lengths: `{"surface_type":{"5":{"value":100}}}`,
			key:     "surface_type",
			termValues: map[string]interface{}{
				"a": "x",
				"b": []int{1},
			},
			wantSame: true,
		},
		{
			name:       "nil deletes the key",
			lengths:    `{"surface_type":{"5":{"value":100}}}`,
			key:        "surface_type",
			termValues: nil,
			check: func(t *testing.T, idx LengthSummaryIndex) {
				if _, ok := idx["surface_type"]; ok {
					t.Error("surface_type still present after delete")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SetKeyedTerms(tt.lengths, tt.key, tt.termValues)
			if tt.wantSame {
				if got != tt.lengths {
					t.Errorf("expected no-op, got %q", got)
				}
				return
			}
			if tt.check != nil {
				tt.check(t, decodeLengthsForEdit(got))
			}
		})
	}
}

func TestAddTerm(t *testing.T) {
	titles := schema.ChoiceTable{"5": "Asphalt"}

	out := AddTerm("{}", "surface_type", "5", 250.0, titles)
	idx := decodeLengthsForEdit(out)
	term := idx["surface_type"]["5"]
	if term.Value != 250 {
		t.Errorf("value = %v, want 250", term.Value)
	}
	if term.Title != "Asphalt" {
		t.Errorf("title = %q, want Asphalt", term.Title)
	}

	// Adding a second term, then deleting both: the key goes with the last
	// term.
	out = AddTerm(out, "surface_type", "2", map[string]interface{}{"value": 50.0}, nil)
	out = AddTerm(out, "surface_type", "5", nil, nil)
	idx = decodeLengthsForEdit(out)
	if _, ok := idx["surface_type"]["5"]; ok {
		t.Error("term 5 still present after delete")
	}
	out = AddTerm(out, "surface_type", "2", nil, nil)
	idx = decodeLengthsForEdit(out)
	if _, ok := idx["surface_type"]; ok {
		t.Error("key still present after deleting its last term")
	}

	// Invalid value is a silent no-op.
	if got := AddTerm(out, "surface_type", "5", "garbage", nil); got != out {
		t.Errorf("invalid value mutated the blob: %q", got)
	}
}

func TestIndexMerge(t *testing.T) {
	a := ParseLengths(`{"surface_type":{"5":{"value":1000,"road_status":{"o":400}}}}`)
	b := ParseLengths(`{"surface_type":{"5":{"value":500,"road_status":{"o":100,"c":50}},"2":{"value":30}}}`)

	merged := a.Merge(b)

	if got := merged["surface_type"]["5"].Value; got != 1500 {
		t.Errorf("merged value = %v, want 1500", got)
	}
	if got := merged["surface_type"]["5"].Secondary["road_status"]["o"]; got != 500 {
		t.Errorf("merged secondary o = %v, want 500", got)
	}
	if got := merged["surface_type"]["5"].Secondary["road_status"]["c"]; got != 50 {
		t.Errorf("merged secondary c = %v, want 50", got)
	}
	if got := merged["surface_type"]["2"].Value; got != 30 {
		t.Errorf("merged new term = %v, want 30", got)
	}

	// Inputs untouched.
	if a["surface_type"]["5"].Value != 1000 {
		t.Error("merge modified its receiver")
	}
}
