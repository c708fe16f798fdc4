package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"road-survey-platform/internal/models"
	"road-survey-platform/internal/repository"
	"road-survey-platform/internal/schema"
	"road-survey-platform/pkg/logging"
	"road-survey-platform/pkg/metrics"
)

var reportTestMetrics = metrics.NewCollector("road_survey_report_test")

// stubRepository is an in-memory SurveyRepository for service tests.
type stubRepository struct {
	roads     map[int64]*models.Road
	records   []models.AttributeRecord
	snapshots map[string]*models.ReportSnapshot
}

func newStubRepository() *stubRepository {
	return &stubRepository{
		roads:     map[int64]*models.Road{},
		snapshots: map[string]*models.ReportSnapshot{},
	}
}

func (s *stubRepository) UpsertRoad(_ context.Context, road *models.Road) error {
	s.roads[road.RoadID] = road
	return nil
}

func (s *stubRepository) GetRoad(_ context.Context, roadID int64) (*models.Road, error) {
	road, ok := s.roads[roadID]
	if !ok {
		return nil, &repository.NotFoundError{Resource: "road", ID: "stub"}
	}
	return road, nil
}

func (s *stubRepository) ListRoads(_ context.Context, limit, offset int) ([]*models.Road, error) {
	roads := make([]*models.Road, 0, len(s.roads))
	for _, road := range s.roads {
		roads = append(roads, road)
	}
	return roads, nil
}

func (s *stubRepository) CreateAttributesBatch(_ context.Context, records []*models.AttributeRecord) error {
	for _, rec := range records {
		s.records = append(s.records, *rec)
	}
	return nil
}

func (s *stubRepository) GetAttributes(_ context.Context, filter repository.AttributeFilter) ([]models.AttributeRecord, int, error) {
	out := []models.AttributeRecord{}
	for _, rec := range s.records {
		if filter.AssetID != nil && rec.AssetID != *filter.AssetID {
			continue
		}
		out = append(out, rec)
	}
	return out, len(out), nil
}

func (s *stubRepository) SaveReportSnapshot(_ context.Context, snap *models.ReportSnapshot) error {
	cp := *snap
	s.snapshots[snap.AssetID] = &cp
	return nil
}

func (s *stubRepository) GetReportSnapshot(_ context.Context, assetID string) (*models.ReportSnapshot, error) {
	snap, ok := s.snapshots[assetID]
	if !ok {
		return nil, &repository.NotFoundError{Resource: "report", ID: assetID}
	}
	return snap, nil
}

func (s *stubRepository) ListReportSnapshots(_ context.Context, limit, offset int) ([]*models.ReportSnapshot, error) {
	if offset > 0 {
		return nil, nil
	}
	snaps := make([]*models.ReportSnapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

func (s *stubRepository) HealthCheck(_ context.Context) error {
	return nil
}

func seedSurfaceRecords(repo *stubRepository, assetID string) {
	roadID := int64(12)
	date := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
	repo.records = append(repo.records,
		models.AttributeRecord{
			AssetID:          assetID,
			RoadID:           &roadID,
			PrimaryAttribute: "surface_type",
			ChainageStart:    0,
			ChainageEnd:      1.5,
			SurveyID:         10,
			UserID:           3,
			DateSurveyed:     &date,
			Value:            "5",
		},
		models.AttributeRecord{
			AssetID:          assetID,
			RoadID:           &roadID,
			PrimaryAttribute: "surface_type",
			ChainageStart:    1.5,
			ChainageEnd:      2.4,
			SurveyID:         11,
			UserID:           3,
			DateSurveyed:     &date,
			Value:            "2",
		},
	)
}

func newTestReportService(repo repository.SurveyRepository) *ReportService {
	return NewReportService(repo, schema.DefaultDocument(), logging.New("report-test", "error"), reportTestMetrics)
}

func TestBuildRoadReportWithoutSnapshot(t *testing.T) {
	repo := newStubRepository()
	seedSurfaceRecords(repo, "ROAD-12")

	svc := newTestReportService(repo)

	rep, err := svc.BuildRoadReport(context.Background(), "ROAD-12", ReportOptions{
		PrimaryAttribute: "surface_type",
	})
	if err != nil {
		t.Fatalf("BuildRoadReport returned error: %v", err)
	}

	if len(rep.Attributes) != 2 {
		t.Fatalf("expected 2 attribute entries, got %d", len(rep.Attributes))
	}

	if len(rep.Rows) != 2 {
		t.Fatalf("expected 2 summary rows, got %d", len(rep.Rows))
	}

	byKey := map[string]string{}
	titles := map[string]string{}
	for _, row := range rep.Rows {
		byKey[row.Key] = row.Distance
		titles[row.Key] = row.Title
	}

	// 1.5 km and 0.9 km of surveyed surface.
	if byKey["5"] != "1.50" {
		t.Errorf("expected 1.50 for code 5, got %q", byKey["5"])
	}
	if byKey["2"] != "0.90" {
		t.Errorf("expected 0.90 for code 2, got %q", byKey["2"])
	}
	if titles["5"] != "Asphalt" {
		t.Errorf("expected Asphalt for code 5, got %q", titles["5"])
	}

	var filter map[string]interface{}
	if err := json.Unmarshal([]byte(rep.Filter), &filter); err != nil {
		t.Fatalf("filter is not valid JSON: %v", err)
	}
	primary, _ := filter["primary_attribute"].([]interface{})
	if len(primary) != 1 || primary[0] != "surface_type" {
		t.Errorf("expected filter primary_attribute [surface_type], got %v", filter["primary_attribute"])
	}
	assetTypes, _ := filter["report_asset_type"].([]interface{})
	if len(assetTypes) != 1 || assetTypes[0] != "road" {
		t.Errorf("expected filter report_asset_type [road], got %v", filter["report_asset_type"])
	}

	if len(rep.Columns) < 2 || rep.Columns[0].Name != "title" || rep.Columns[1].Name != "distance" {
		t.Errorf("expected title and distance columns first, got %v", rep.Columns)
	}
}

func TestBuildRoadReportUsesSnapshotLengths(t *testing.T) {
	repo := newStubRepository()
	seedSurfaceRecords(repo, "ROAD-12")
	repo.snapshots["ROAD-12"] = &models.ReportSnapshot{
		AssetID: "ROAD-12",
		Filter:  `{"primary_attribute":[],"report_asset_type":[]}`,
		Lengths: `{"surface_type":{"5":{"value":5000}}}`,
	}

	svc := newTestReportService(repo)

	rep, err := svc.BuildRoadReport(context.Background(), "ROAD-12", ReportOptions{
		PrimaryAttribute: "surface_type",
	})
	if err != nil {
		t.Fatalf("BuildRoadReport returned error: %v", err)
	}

	if len(rep.Rows) != 1 {
		t.Fatalf("expected 1 row from snapshot lengths, got %d", len(rep.Rows))
	}
	if rep.Rows[0].Distance != "5.00" {
		t.Errorf("expected snapshot distance 5.00, got %q", rep.Rows[0].Distance)
	}
}

func TestRefreshReportSnapshotAndNetworkSummary(t *testing.T) {
	repo := newStubRepository()
	seedSurfaceRecords(repo, "ROAD-12")
	seedSurfaceRecords(repo, "ROAD-13")

	svc := newTestReportService(repo)

	for _, assetID := range []string{"ROAD-12", "ROAD-13"} {
		if err := svc.RefreshReportSnapshot(context.Background(), assetID); err != nil {
			t.Fatalf("RefreshReportSnapshot(%s) returned error: %v", assetID, err)
		}
	}

	if len(repo.snapshots) != 2 {
		t.Fatalf("expected 2 stored snapshots, got %d", len(repo.snapshots))
	}

	rows, columns, err := svc.NetworkSummary(context.Background(), "surface_type")
	if err != nil {
		t.Fatalf("NetworkSummary returned error: %v", err)
	}

	byKey := map[string]string{}
	for _, row := range rows {
		byKey[row.Key] = row.Distance
	}

	// Two identical roads, so every bucket doubles.
	if byKey["5"] != "3.00" {
		t.Errorf("expected merged distance 3.00 for code 5, got %q", byKey["5"])
	}
	if byKey["2"] != "1.80" {
		t.Errorf("expected merged distance 1.80 for code 2, got %q", byKey["2"])
	}

	if len(columns) == 0 {
		t.Error("expected column descriptors from network summary")
	}
}
