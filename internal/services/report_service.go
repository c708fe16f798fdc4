package services

import (
	"context"
	"fmt"
	"time"

	"road-survey-platform/internal/models"
	"road-survey-platform/internal/report"
	"road-survey-platform/internal/repository"
	"road-survey-platform/internal/schema"
	"road-survey-platform/pkg/logging"
	"road-survey-platform/pkg/metrics"
)

// Attributes rendered as whole counts rather than scaled distances.
var countAttributes = map[string]bool{
	"number_lanes": true,
}

// RoadReport is the assembled report for one asset and primary attribute.
type RoadReport struct {
	AssetID          string                   `json:"asset_id"`
	PrimaryAttribute string                   `json:"primary_attribute"`
	Filter           string                   `json:"filter"`
	Lengths          string                   `json:"lengths"`
	DateCutoff       *time.Time               `json:"date_cutoff,omitempty"`
	Attributes       []models.AttributeRecord `json:"attributes"`
	Rows             []report.SummaryRow      `json:"rows"`
	Columns          []report.Column          `json:"columns"`
}

// ReportOptions controls report assembly.
type ReportOptions struct {
	PrimaryAttribute string
	DateCutoff       *time.Time
	ReturnAllEntries bool
}

// ReportService assembles survey reports from stored attributes and
// snapshots
type ReportService struct {
	repo    repository.SurveyRepository
	choices schema.ChoiceSet
	logger  *logging.Logger
	metrics *metrics.Collector
}

// NewReportService creates a new report service
func NewReportService(repo repository.SurveyRepository, doc schema.Document, logger *logging.Logger, metricsCollector *metrics.Collector) *ReportService {
	return &ReportService{
		repo:    repo,
		choices: schema.BuildSet(doc),
		logger:  logger,
		metrics: metricsCollector,
	}
}

// BuildRoadReport assembles the report for one asset and primary attribute.
// The stored snapshot supplies the lengths index when present; otherwise the
// index is rebuilt from the asset's merged attribute records.
func (s *ReportService) BuildRoadReport(ctx context.Context, assetID string, opts ReportOptions) (*RoadReport, error) {
	timer := s.metrics.NewTimer(s.metrics.ReportBuildDuration)
	defer timer.ObserveDuration()

	filter := report.ClearFilter()
	lengths := ""

	snap, err := s.repo.GetReportSnapshot(ctx, assetID)
	switch err.(type) {
	case nil:
		filter = snap.Filter
		lengths = snap.Lengths
	case *repository.NotFoundError:
		// No snapshot yet; rebuild below.
	default:
		return nil, fmt.Errorf("failed to load report snapshot: %w", err)
	}

	records, _, err := s.repo.GetAttributes(ctx, repository.AttributeFilter{
		AssetID: &assetID,
		Limit:   maxReportRecords,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load attributes: %w", err)
	}

	merged := report.MergeBySurvey(records)

	if lengths == "" {
		idx := report.BuildIndex(merged, report.KnownPrimaryAttributes())
		lengths = idx.Encode()
	}

	filter = report.SetFilterKey(filter, "primary_attribute", []interface{}{opts.PrimaryAttribute})
	filter = report.AddFilterItem(filter, "report_asset_type", assetTypeOf(assetID))

	selection := report.Select(merged, opts.PrimaryAttribute, opts.DateCutoff, opts.ReturnAllEntries)

	registry := report.NewColumnRegistry()
	idx := report.ParseLengths(lengths)
	rows := idx.Extract(opts.PrimaryAttribute, report.ExtractOptions{
		Choices:          s.choices.Table(opts.PrimaryAttribute),
		SecondaryChoices: s.choices,
		UseRawKeyAsTitle: true,
		IsCount:          countAttributes[opts.PrimaryAttribute],
		Registry:         registry,
	})

	s.metrics.RecordReportRows(opts.PrimaryAttribute, len(rows))
	s.logger.WithFields(logging.Fields{
		"asset_id":          assetID,
		"primary_attribute": opts.PrimaryAttribute,
		"records":           len(records),
		"entries":           len(selection.AttributeEntries),
		"rows":              len(rows),
	}).Debug("road report assembled")

	return &RoadReport{
		AssetID:          assetID,
		PrimaryAttribute: opts.PrimaryAttribute,
		Filter:           filter,
		Lengths:          lengths,
		DateCutoff:       selection.DateCutoff,
		Attributes:       selection.AttributeEntries,
		Rows:             rows,
		Columns:          registry.Columns(),
	}, nil
}

// RefreshReportSnapshot rebuilds and stores the lengths snapshot for one
// asset from its current attribute records.
func (s *ReportService) RefreshReportSnapshot(ctx context.Context, assetID string) error {
	records, _, err := s.repo.GetAttributes(ctx, repository.AttributeFilter{
		AssetID: &assetID,
		Limit:   maxReportRecords,
	})
	if err != nil {
		return fmt.Errorf("failed to load attributes: %w", err)
	}

	merged := report.MergeBySurvey(records)
	idx := report.BuildIndex(merged, report.KnownPrimaryAttributes())

	filter := report.ClearFilter()
	filter = report.AddFilterItem(filter, "report_asset_type", assetTypeOf(assetID))

	now := time.Now().UTC()
	snap := &models.ReportSnapshot{
		AssetID:   assetID,
		Filter:    filter,
		Lengths:   idx.Encode(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.SaveReportSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("failed to save report snapshot: %w", err)
	}

	s.logger.WithFields(logging.Fields{
		"asset_id": assetID,
		"records":  len(records),
	}).Info("report snapshot refreshed")

	return nil
}

// NetworkSummary merges every stored snapshot into one network-wide lengths
// index and extracts rows for the requested primary attribute.
func (s *ReportService) NetworkSummary(ctx context.Context, primaryAttribute string) ([]report.SummaryRow, []report.Column, error) {
	timer := s.metrics.NewTimer(s.metrics.ReportBuildDuration)
	defer timer.ObserveDuration()

	combined := report.LengthSummaryIndex{}

	offset := 0
	for {
		snaps, err := s.repo.ListReportSnapshots(ctx, snapshotPageSize, offset)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list report snapshots: %w", err)
		}
		if len(snaps) == 0 {
			break
		}

		for _, snap := range snaps {
			combined = combined.Merge(report.ParseLengths(snap.Lengths))
		}

		offset += len(snaps)
		if len(snaps) < snapshotPageSize {
			break
		}
	}

	registry := report.NewColumnRegistry()
	rows := combined.Extract(primaryAttribute, report.ExtractOptions{
		Choices:          s.choices.Table(primaryAttribute),
		SecondaryChoices: s.choices,
		UseRawKeyAsTitle: true,
		IsCount:          countAttributes[primaryAttribute],
		Registry:         registry,
	})

	s.metrics.RecordReportRows(primaryAttribute, len(rows))

	return rows, registry.Columns(), nil
}

const (
	maxReportRecords = 100000
	snapshotPageSize = 500
)

// assetTypeOf maps a composite asset id to its filter asset type.
func assetTypeOf(assetID string) string {
	prefix, _, err := models.SplitAssetID(assetID)
	if err != nil {
		return "unknown"
	}

	switch prefix {
	case models.AssetPrefixRoad:
		return "road"
	case models.AssetPrefixBridge:
		return "bridge"
	case models.AssetPrefixCulvert:
		return "culvert"
	default:
		return "unknown"
	}
}
