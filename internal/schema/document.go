package schema

import (
	"encoding/json"
	"fmt"
	"os"
)

// Field describes one attribute field in the schema document: its display
// name, help text, and the coded options it may take. Options arrive either
// as [code, label] pairs or as objects keyed by code/name.
type Field struct {
	Options  []json.RawMessage `json:"options,omitempty"`
	Display  string            `json:"display,omitempty"`
	HelpText string            `json:"help_text,omitempty"`
}

// Document is the schema document keyed by attribute field name. It is
// loaded once at startup and read-only from then on.
type Document map[string]Field

// LoadDocument reads a schema document from a JSON file.
func LoadDocument(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse schema document: %w", err)
	}

	return doc, nil
}

// pairOptions renders [code, label] pairs into a Field, for building the
// fallback document without JSON literals everywhere.
func pairOptions(display string, pairs ...[2]string) Field {
	f := Field{Display: display}
	for _, p := range pairs {
		raw, _ := json.Marshal([2]string{p[0], p[1]})
		f.Options = append(f.Options, json.RawMessage(raw))
	}
	return f
}

// DefaultDocument is the built-in road schema used when no schema document
// path is configured. Codes follow the road inventory wire shape.
func DefaultDocument() Document {
	return Document{
		"asset_class": pairOptions("Asset Class",
			[2]string{"NAT", "National"},
			[2]string{"MUN", "Municipal"},
			[2]string{"URB", "Urban"},
			[2]string{"RUR", "Rural"},
		),
		"asset_condition": pairOptions("Surface Condition",
			[2]string{"1", "Good"},
			[2]string{"2", "Fair"},
			[2]string{"3", "Poor"},
			[2]string{"4", "Bad"},
		),
		"surface_type": pairOptions("Surface Type",
			[2]string{"1", "Earthen"},
			[2]string{"2", "Gravel"},
			[2]string{"3", "Stone"},
			[2]string{"4", "Cobblestone"},
			[2]string{"5", "Asphalt"},
			[2]string{"6", "Concrete"},
		),
		"pavement_class": pairOptions("Pavement Class",
			[2]string{"1", "Sealed"},
			[2]string{"2", "Unsealed"},
		),
		"technical_class": pairOptions("Technical Class",
			[2]string{"R1", "R1"},
			[2]string{"R2", "R2"},
			[2]string{"R4", "R4"},
		),
		"terrain_class": pairOptions("Terrain Class",
			[2]string{"1", "Flat"},
			[2]string{"2", "Rolling"},
			[2]string{"3", "Mountainous"},
		),
		"road_status": pairOptions("Road Status",
			[2]string{"o", "Open"},
			[2]string{"c", "Closed"},
			[2]string{"p", "Planned"},
		),
		"rainfall": pairOptions("Rainfall",
			[2]string{"1", "Below 2000 mm"},
			[2]string{"2", "2000-3000 mm"},
			[2]string{"3", "Above 3000 mm"},
		),
		"number_lanes":     {Display: "Number of Lanes"},
		"municipality":     {Display: "Municipality"},
		"roughness":        {Display: "Roughness (IRI)"},
		"source_roughness": {Display: "Roughness Source"},
	}
}
