package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Asset type prefixes used in composite asset ids such as "ROAD-123".
const (
	AssetPrefixRoad    = "ROAD"
	AssetPrefixBridge  = "BRDG"
	AssetPrefixCulvert = "CULV"
)

// Road represents one road in the network inventory
type Road struct {
	RoadID       int64     `json:"road_id" db:"road_id"`
	RoadCode     string    `json:"road_code" db:"road_code"`
	AssetClass   string    `json:"asset_class" db:"asset_class"`
	Municipality string    `json:"municipality" db:"municipality"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Photo is an opaque reference attached to an attribute record.
// It is carried through unchanged; nothing in this system interprets it.
type Photo struct {
	ID          int64  `json:"id"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// AttributeRecord is one surveyed value for one (asset, attribute,
// chainage range) tuple. Records are immutable once built from wire or
// storage data; MergeBySurvey produces new records rather than mutating.
//
// PrimaryAttribute normally holds a single attribute name. After a
// multi-attribute merge it holds a JSON array of names and Value holds a
// JSON object mapping each name to its raw value (see ParseValue).
type AttributeRecord struct {
	ID               int64      `json:"id,omitempty" db:"id"`
	AssetID          string     `json:"asset_id" db:"asset_id"`
	AssetCode        string     `json:"asset_code" db:"asset_code"`
	RoadID           *int64     `json:"road_id,omitempty" db:"road_id"`
	RoadCode         string     `json:"road_code,omitempty" db:"road_code"`
	PrimaryAttribute string     `json:"primary_attribute" db:"primary_attribute"`
	ChainageStart    float64    `json:"chainage_start" db:"chainage_start"`
	ChainageEnd      float64    `json:"chainage_end" db:"chainage_end"`
	SurveyID         int64      `json:"survey_id" db:"survey_id"`
	UserID           int64      `json:"user_id" db:"user_id"`
	DateSurveyed     *time.Time `json:"date_surveyed,omitempty" db:"date_surveyed"`
	AddedBy          string     `json:"added_by" db:"added_by"`
	Value            string     `json:"value" db:"value"`
	Photos           []Photo    `json:"photos,omitempty" db:"-"`
}

// Length returns the chainage extent covered by the record. Garbage in,
// garbage out: an inverted chainage range yields a negative length.
func (r *AttributeRecord) Length() float64 {
	return r.ChainageEnd - r.ChainageStart
}

// IsGenerated reports whether the record was machine-derived rather than
// entered by a surveyor. A zero user id means generated, full stop.
func (r *AttributeRecord) IsGenerated() bool {
	return r.UserID == 0
}

// Report is the decoded report wire shape: two JSON blob strings plus the
// flat attribute list they summarize.
type Report struct {
	Filter     string            `json:"filter"`
	Lengths    string            `json:"lengths"`
	Attributes []AttributeRecord `json:"attributes"`
}

// ReportSnapshot is a stored per-asset report: the filter and lengths JSON
// strings as last computed for that asset.
type ReportSnapshot struct {
	ID        int64     `json:"id" db:"id"`
	AssetID   string    `json:"asset_id" db:"asset_id"`
	Filter    string    `json:"filter" db:"filter"`
	Lengths   string    `json:"lengths" db:"lengths"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// FormatAssetID builds a composite asset id from a type prefix and a
// numeric id, e.g. ("ROAD", 123) -> "ROAD-123".
func FormatAssetID(prefix string, id int64) string {
	return fmt.Sprintf("%s-%d", prefix, id)
}

// SplitAssetID splits a composite asset id into its prefix and numeric id.
func SplitAssetID(assetID string) (string, int64, error) {
	idx := strings.LastIndex(assetID, "-")
	if idx <= 0 || idx == len(assetID)-1 {
		return "", 0, &ValidationError{
			Field:   "asset_id",
			Value:   assetID,
			Message: "invalid asset id, expected <PREFIX>-<number>",
		}
	}

	id, err := strconv.ParseInt(assetID[idx+1:], 10, 64)
	if err != nil {
		return "", 0, &ValidationError{
			Field:   "asset_id",
			Value:   assetID,
			Message: "invalid asset id, numeric part is not a number",
		}
	}

	return assetID[:idx], id, nil
}

// RawSurveyLine represents a single line from a tab-separated survey file,
// before validation and conversion.
type RawSurveyLine struct {
	RoadID           int64
	RoadCode         string
	PrimaryAttribute string
	ChainageStart    float64
	ChainageEnd      float64
	SurveyID         int64
	UserID           int64
	DateSurveyed     string // YYYY-MM-DD, empty when unknown
	AddedBy          string
	Value            string
}

// ToAttributeRecord converts a raw survey line into an AttributeRecord.
// An empty survey date becomes a nil DateSurveyed; the record is then
// treated as "still current" by the selector.
func (l *RawSurveyLine) ToAttributeRecord() (*AttributeRecord, error) {
	if l.PrimaryAttribute == "" {
		return nil, &ValidationError{
			Field:   "primary_attribute",
			Value:   "",
			Message: "missing primary attribute name",
		}
	}

	rec := &AttributeRecord{
		AssetID:          FormatAssetID(AssetPrefixRoad, l.RoadID),
		AssetCode:        l.RoadCode,
		RoadID:           &l.RoadID,
		RoadCode:         l.RoadCode,
		PrimaryAttribute: l.PrimaryAttribute,
		ChainageStart:    l.ChainageStart,
		ChainageEnd:      l.ChainageEnd,
		SurveyID:         l.SurveyID,
		UserID:           l.UserID,
		AddedBy:          l.AddedBy,
		Value:            l.Value,
	}

	if l.DateSurveyed != "" {
		date, err := time.Parse("2006-01-02", l.DateSurveyed)
		if err != nil {
			return nil, &ValidationError{
				Field:   "date_surveyed",
				Value:   l.DateSurveyed,
				Message: "invalid survey date, expected YYYY-MM-DD",
			}
		}
		utc := date.UTC()
		rec.DateSurveyed = &utc
	}

	return rec, nil
}

// ValidationError represents a data validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}
