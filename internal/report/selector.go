package report

import (
	"encoding/json"
	"sort"
	"time"

	"road-survey-platform/internal/models"
)

// Selection is the outward result of attribute selection: the echoed cutoff
// and the date-ordered entries that survived filtering.
type Selection struct {
	DateCutoff       *time.Time               `json:"date_cutoff,omitempty"`
	AttributeEntries []models.AttributeRecord `json:"attribute_entries"`
}

// Select picks the records reporting on one primary attribute and orders
// them newest first. Matching is an exact string comparison; merged
// multi-attribute records match on their array-ified name. Rules:
//
//   - a dated record always sorts before an undated one; two undated
//     records keep their input order (stable sort)
//   - a cutoff drops dated records newer than it; undated records are
//     treated as still current and are never dropped
//   - unless returnAllEntries is set, a result consisting solely of
//     generated records (no user id anywhere) collapses to empty
//
// No match is not an error: the result is empty but valid.
func Select(records []models.AttributeRecord, primaryAttribute string, dateCutoff *time.Time, returnAllEntries bool) Selection {
	matched := make([]models.AttributeRecord, 0, len(records))
	for _, rec := range records {
		if rec.PrimaryAttribute == primaryAttribute {
			matched = append(matched, rec)
		}
	}

	if len(matched) == 0 {
		return Selection{AttributeEntries: []models.AttributeRecord{}}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		di, dj := matched[i].DateSurveyed, matched[j].DateSurveyed
		switch {
		case di != nil && dj != nil:
			return di.After(*dj)
		case di != nil:
			return true
		default:
			return false
		}
	})

	if dateCutoff != nil {
		kept := matched[:0]
		for _, rec := range matched {
			if rec.DateSurveyed != nil && rec.DateSurveyed.After(*dateCutoff) {
				continue
			}
			kept = append(kept, rec)
		}
		matched = kept
	}

	if !returnAllEntries {
		allGenerated := true
		for _, rec := range matched {
			if !rec.IsGenerated() {
				allGenerated = false
				break
			}
		}
		if allGenerated {
			matched = []models.AttributeRecord{}
		}
	}

	return Selection{DateCutoff: dateCutoff, AttributeEntries: matched}
}

// mergeState tracks one survey's accumulating record during MergeBySurvey.
type mergeState struct {
	seed   models.AttributeRecord
	names  []string
	values map[string]string
	merged bool
}

// MergeBySurvey collapses per-attribute records sharing a survey id into
// single multi-attribute records. The first record for a survey seeds the
// group; each further record with a different attribute name rewrites the
// seed's attribute to a JSON array of the distinct names seen and its value
// to a JSON object mapping name to raw value. A record whose attribute name
// already equals the seed's array-ified name is treated as merged upstream:
// its value map is folded in and the name array is left alone.
//
// Input records are not modified; group order follows first appearance.
func MergeBySurvey(records []models.AttributeRecord) []models.AttributeRecord {
	states := make(map[int64]*mergeState)
	order := make([]int64, 0, len(records))

	for _, rec := range records {
		st, ok := states[rec.SurveyID]
		if !ok {
			st = &mergeState{seed: rec}
			// A seed may itself arrive pre-merged from upstream data.
			if names := decodeNameArray(rec.PrimaryAttribute); names != nil {
				st.merged = true
				st.names = names
				st.values = compositeValues(rec.Value)
			}
			states[rec.SurveyID] = st
			order = append(order, rec.SurveyID)
			continue
		}

		if !st.merged {
			if rec.PrimaryAttribute == st.seed.PrimaryAttribute {
				// Duplicate single-attribute row for the same survey; the
				// seed already reports this attribute.
				continue
			}
			st.merged = true
			st.names = []string{st.seed.PrimaryAttribute}
			st.values = map[string]string{st.seed.PrimaryAttribute: st.seed.Value}
		}

		if rec.PrimaryAttribute == encodeNameArray(st.names) {
			for name, v := range compositeValues(rec.Value) {
				st.values[name] = v
			}
			continue
		}

		if !containsName(st.names, rec.PrimaryAttribute) {
			st.names = append(st.names, rec.PrimaryAttribute)
		}
		st.values[rec.PrimaryAttribute] = rec.Value
	}

	out := make([]models.AttributeRecord, 0, len(order))
	for _, surveyID := range order {
		st := states[surveyID]
		if !st.merged {
			out = append(out, st.seed)
			continue
		}
		rec := st.seed
		rec.PrimaryAttribute = encodeNameArray(st.names)
		rec.Value = models.CompositeValue(st.values).Encode()
		out = append(out, rec)
	}

	return out
}

// decodeNameArray returns the names held by an array-ified attribute name,
// or nil when the string is a plain name.
func decodeNameArray(attr string) []string {
	if len(attr) == 0 || attr[0] != '[' {
		return nil
	}
	var names []string
	if err := json.Unmarshal([]byte(attr), &names); err != nil {
		return nil
	}
	return names
}

func encodeNameArray(names []string) string {
	data, err := json.Marshal(names)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// compositeValues decodes a merged value map; a scalar value yields an
// empty map rather than an error, mirroring the engine's absorb-bad-input
// posture.
func compositeValues(raw string) map[string]string {
	v := models.ParseValue(raw)
	if v.IsComposite() {
		return v.Composite()
	}
	return map[string]string{}
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// BuildIndex aggregates attribute records into a length summary index for
// the given primary attributes. Each record contributes its chainage length
// (meter-scaled from kilometer chainages) to the bucket named by its raw
// value for that attribute; records not reporting the attribute fall into
// the "None" bucket only when nothing else covers it. Merged records
// contribute to every attribute their value map names.
func BuildIndex(records []models.AttributeRecord, primaries []string) LengthSummaryIndex {
	idx := make(LengthSummaryIndex, len(primaries))

	for _, primary := range primaries {
		terms := map[string]Term{}
		for _, rec := range records {
			termKey, ok := recordTermKey(rec, primary)
			if !ok {
				continue
			}
			t := terms[termKey]
			t.Value += rec.Length() * 1000
			terms[termKey] = t
		}
		if len(terms) == 0 {
			terms["None"] = Term{Value: 0}
		}
		idx[primary] = terms
	}

	return idx
}

// recordTermKey resolves which bucket a record feeds for one primary
// attribute, if any.
func recordTermKey(rec models.AttributeRecord, primary string) (string, bool) {
	if rec.PrimaryAttribute == primary {
		if rec.Value == "" {
			return "None", true
		}
		return rec.Value, true
	}

	if names := decodeNameArray(rec.PrimaryAttribute); names != nil && containsName(names, primary) {
		if v, ok := models.ParseValue(rec.Value).Get(primary); ok && v != "" {
			return v, true
		}
		return "None", true
	}

	return "", false
}
