package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"road-survey-platform/internal/models"
	"road-survey-platform/pkg/database"
	"road-survey-platform/pkg/logging"
	"road-survey-platform/pkg/metrics"
)

var testMetrics = metrics.NewCollector("road_survey_repository_test")

func newTestRepository(t *testing.T) (SurveyRepository, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })

	db := sqlx.NewDb(mockDB, "postgres")
	logger := logging.New("repository-test", "error")
	pg := database.NewWithDB(db, logger, testMetrics)

	return NewSurveyRepository(pg, logger, testMetrics), mock
}

func TestGetRoad(t *testing.T) {
	repo, mock := newTestRepository(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"road_id", "road_code", "asset_class", "municipality", "created_at", "updated_at"}).
		AddRow(int64(12), "A01", "NAT", "Dili", now, now)

	mock.ExpectQuery("(?s)SELECT (.+) FROM roads").
		WithArgs(int64(12)).
		WillReturnRows(rows)

	road, err := repo.GetRoad(context.Background(), 12)
	if err != nil {
		t.Fatalf("GetRoad returned error: %v", err)
	}
	if road.RoadCode != "A01" {
		t.Errorf("expected road code A01, got %q", road.RoadCode)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetRoadNotFound(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectQuery("(?s)SELECT (.+) FROM roads").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"road_id"}))

	_, err := repo.GetRoad(context.Background(), 99)
	if err == nil {
		t.Fatal("expected error for missing road")
	}
	if _, ok := err.(*NotFoundError); !ok {
		t.Errorf("expected NotFoundError, got %T: %v", err, err)
	}
}

func TestUpsertRoad(t *testing.T) {
	repo, mock := newTestRepository(t)

	now := time.Now()
	road := &models.Road{
		RoadID:    7,
		RoadCode:  "C12",
		CreatedAt: now,
		UpdatedAt: now,
	}

	mock.ExpectExec("INSERT INTO roads").
		WithArgs(road.RoadID, road.RoadCode, road.AssetClass, road.Municipality, road.CreatedAt, road.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpsertRoad(context.Background(), road); err != nil {
		t.Fatalf("UpsertRoad returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetAttributesWithFilter(t *testing.T) {
	repo, mock := newTestRepository(t)

	assetID := "ROAD-12"
	attr := "surface_type"

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(assetID, attr).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	date := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "asset_id", "asset_code", "road_id", "road_code", "primary_attribute",
		"chainage_start", "chainage_end", "survey_id", "user_id",
		"date_surveyed", "added_by", "value",
	}).
		AddRow(int64(1), assetID, "A01", int64(12), "A01", attr, 0.0, 1.5, int64(10), int64(3), date, "tech", `"5"`).
		AddRow(int64(2), assetID, "A01", int64(12), "A01", attr, 1.5, 3.0, int64(11), int64(3), nil, "tech", `"2"`)

	mock.ExpectQuery("(?s)SELECT (.+) FROM survey_attributes").
		WithArgs(assetID, attr, 100, 0).
		WillReturnRows(rows)

	records, total, err := repo.GetAttributes(context.Background(), AttributeFilter{
		AssetID:          &assetID,
		PrimaryAttribute: &attr,
		Limit:            100,
	})
	if err != nil {
		t.Fatalf("GetAttributes returned error: %v", err)
	}
	if total != 2 {
		t.Errorf("expected total 2, got %d", total)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].SurveyID != 10 {
		t.Errorf("expected survey 10 first, got %d", records[0].SurveyID)
	}
	if records[1].DateSurveyed != nil {
		t.Errorf("expected nil date on second record")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateAttributesBatch(t *testing.T) {
	repo, mock := newTestRepository(t)

	roadID := int64(12)
	records := []*models.AttributeRecord{
		{
			AssetID:          "ROAD-12",
			AssetCode:        "A01",
			RoadID:           &roadID,
			RoadCode:         "A01",
			PrimaryAttribute: "surface_type",
			ChainageStart:    0,
			ChainageEnd:      1.5,
			SurveyID:         10,
			UserID:           3,
			AddedBy:          "tech",
			Value:            `"5"`,
		},
		{
			AssetID:          "ROAD-12",
			AssetCode:        "A01",
			RoadID:           &roadID,
			RoadCode:         "A01",
			PrimaryAttribute: "asset_condition",
			ChainageStart:    0,
			ChainageEnd:      1.5,
			SurveyID:         10,
			UserID:           3,
			AddedBy:          "tech",
			Value:            `"2"`,
		},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO survey_attributes")
	for range records {
		prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	if err := repo.CreateAttributesBatch(context.Background(), records); err != nil {
		t.Fatalf("CreateAttributesBatch returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateAttributesBatchEmpty(t *testing.T) {
	repo, mock := newTestRepository(t)

	if err := repo.CreateAttributesBatch(context.Background(), nil); err != nil {
		t.Fatalf("expected nil error for empty batch, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("no statements should run for an empty batch: %v", err)
	}
}

func TestSaveAndGetReportSnapshot(t *testing.T) {
	repo, mock := newTestRepository(t)

	now := time.Now()
	snap := &models.ReportSnapshot{
		AssetID:   "ROAD-12",
		Filter:    `{"primary_attribute":[],"report_asset_type":[]}`,
		Lengths:   `{"surface_type":{"5":{"value":1500}}}`,
		CreatedAt: now,
		UpdatedAt: now,
	}

	mock.ExpectExec("INSERT INTO reports").
		WithArgs(snap.AssetID, snap.Filter, snap.Lengths, snap.CreatedAt, snap.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.SaveReportSnapshot(context.Background(), snap); err != nil {
		t.Fatalf("SaveReportSnapshot returned error: %v", err)
	}

	rows := sqlmock.NewRows([]string{"id", "asset_id", "filter", "lengths", "created_at", "updated_at"}).
		AddRow(int64(1), snap.AssetID, snap.Filter, snap.Lengths, now, now)

	mock.ExpectQuery("(?s)SELECT (.+) FROM reports").
		WithArgs(snap.AssetID).
		WillReturnRows(rows)

	got, err := repo.GetReportSnapshot(context.Background(), snap.AssetID)
	if err != nil {
		t.Fatalf("GetReportSnapshot returned error: %v", err)
	}
	if got.Lengths != snap.Lengths {
		t.Errorf("lengths mismatch: got %q", got.Lengths)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetReportSnapshotNotFound(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectQuery("(?s)SELECT (.+) FROM reports").
		WithArgs("ROAD-404").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetReportSnapshot(context.Background(), "ROAD-404")
	if _, ok := err.(*NotFoundError); !ok {
		t.Errorf("expected NotFoundError, got %T: %v", err, err)
	}
}
