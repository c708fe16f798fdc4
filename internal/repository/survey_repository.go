package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"road-survey-platform/internal/models"
	"road-survey-platform/pkg/database"
	"road-survey-platform/pkg/logging"
	"road-survey-platform/pkg/metrics"
)

// SurveyRepository provides data access for roads, survey attributes and
// report snapshots
type SurveyRepository interface {
	// Road operations
	UpsertRoad(ctx context.Context, road *models.Road) error
	GetRoad(ctx context.Context, roadID int64) (*models.Road, error)
	ListRoads(ctx context.Context, limit, offset int) ([]*models.Road, error)

	// Attribute operations
	CreateAttributesBatch(ctx context.Context, records []*models.AttributeRecord) error
	GetAttributes(ctx context.Context, filter AttributeFilter) ([]models.AttributeRecord, int, error)

	// Report snapshot operations
	SaveReportSnapshot(ctx context.Context, snap *models.ReportSnapshot) error
	GetReportSnapshot(ctx context.Context, assetID string) (*models.ReportSnapshot, error)
	ListReportSnapshots(ctx context.Context, limit, offset int) ([]*models.ReportSnapshot, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// AttributeFilter defines filters for querying survey attributes
type AttributeFilter struct {
	AssetID          *string
	PrimaryAttribute *string
	SurveyedAfter    *time.Time
	SurveyedBefore   *time.Time
	Limit            int
	Offset           int
}

// surveyRepository implements SurveyRepository
type surveyRepository struct {
	db      *database.PostgresDB
	logger  *logging.Logger
	metrics *metrics.Collector
}

// NewSurveyRepository creates a new survey repository
func NewSurveyRepository(db *database.PostgresDB, logger *logging.Logger, metricsCollector *metrics.Collector) SurveyRepository {
	return &surveyRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// UpsertRoad creates or refreshes a road inventory row
func (r *surveyRepository) UpsertRoad(ctx context.Context, road *models.Road) error {
	query := `
		INSERT INTO roads (road_id, road_code, asset_class, municipality, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (road_id) DO UPDATE SET
			road_code = EXCLUDED.road_code,
			asset_class = EXCLUDED.asset_class,
			municipality = EXCLUDED.municipality,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, "upsert_road", query,
		road.RoadID,
		road.RoadCode,
		road.AssetClass,
		road.Municipality,
		road.CreatedAt,
		road.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert road: %w", err)
	}

	r.logger.WithFields(logging.Fields{
		"road_id":   road.RoadID,
		"road_code": road.RoadCode,
	}).Debug("road upserted")

	return nil
}

// GetRoad retrieves a road by id
func (r *surveyRepository) GetRoad(ctx context.Context, roadID int64) (*models.Road, error) {
	query := `
		SELECT road_id, road_code, asset_class, municipality, created_at, updated_at
		FROM roads
		WHERE road_id = $1
	`

	var road models.Road
	err := r.db.GetContext(ctx, "get_road", &road, query, roadID)

	if err == sql.ErrNoRows {
		return nil, &NotFoundError{
			Resource: "road",
			ID:       fmt.Sprintf("%d", roadID),
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get road: %w", err)
	}

	return &road, nil
}

// ListRoads retrieves roads with pagination
func (r *surveyRepository) ListRoads(ctx context.Context, limit, offset int) ([]*models.Road, error) {
	query := `
		SELECT road_id, road_code, asset_class, municipality, created_at, updated_at
		FROM roads
		ORDER BY road_id
		LIMIT $1 OFFSET $2
	`

	var roads []*models.Road
	err := r.db.SelectContext(ctx, "list_roads", &roads, query, limit, offset)

	if err != nil {
		return nil, fmt.Errorf("failed to list roads: %w", err)
	}

	return roads, nil
}

// CreateAttributesBatch inserts survey attribute records in one transaction
func (r *surveyRepository) CreateAttributesBatch(ctx context.Context, records []*models.AttributeRecord) error {
	if len(records) == 0 {
		return nil
	}

	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		r.metrics.IngestionBatchSize.Observe(float64(len(records)))
		r.logger.WithFields(logging.Fields{
			"count":       len(records),
			"duration_ms": duration.Milliseconds(),
		}).Debug("attribute batch insert completed")
	}()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO survey_attributes (
			asset_id, asset_code, road_id, road_code, primary_attribute,
			chainage_start, chainage_end, survey_id, user_id,
			date_surveyed, added_by, value, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (survey_id, primary_attribute, chainage_start, chainage_end) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			date_surveyed = EXCLUDED.date_surveyed,
			added_by = EXCLUDED.added_by,
			value = EXCLUDED.value
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, rec := range records {
		_, err := stmt.ExecContext(ctx,
			rec.AssetID,
			rec.AssetCode,
			rec.RoadID,
			rec.RoadCode,
			rec.PrimaryAttribute,
			rec.ChainageStart,
			rec.ChainageEnd,
			rec.SurveyID,
			rec.UserID,
			rec.DateSurveyed,
			rec.AddedBy,
			rec.Value,
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert attribute record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.metrics.IngestionRecordsTotal.Add(float64(len(records)))

	return nil
}

// GetAttributes retrieves survey attributes with filtering and pagination
func (r *surveyRepository) GetAttributes(ctx context.Context, filter AttributeFilter) ([]models.AttributeRecord, int, error) {
	query := `
		SELECT id, asset_id, asset_code, road_id, road_code, primary_attribute,
		       chainage_start, chainage_end, survey_id, user_id,
		       date_surveyed, added_by, value
		FROM survey_attributes
		WHERE 1=1
	`
	args := []interface{}{}
	argNum := 1

	if filter.AssetID != nil {
		query += fmt.Sprintf(" AND asset_id = $%d", argNum)
		args = append(args, *filter.AssetID)
		argNum++
	}

	if filter.PrimaryAttribute != nil {
		query += fmt.Sprintf(" AND primary_attribute = $%d", argNum)
		args = append(args, *filter.PrimaryAttribute)
		argNum++
	}

	if filter.SurveyedAfter != nil {
		query += fmt.Sprintf(" AND date_surveyed >= $%d", argNum)
		args = append(args, *filter.SurveyedAfter)
		argNum++
	}

	if filter.SurveyedBefore != nil {
		query += fmt.Sprintf(" AND date_surveyed <= $%d", argNum)
		args = append(args, *filter.SurveyedBefore)
		argNum++
	}

	// Get total count
	countQuery := "SELECT COUNT(*) FROM (" + query + ") AS count_query"
	var totalCount int
	err := r.db.GetContext(ctx, "count_attributes", &totalCount, countQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count attributes: %w", err)
	}

	// Undated rows sort last so wire order already matches selection order.
	query += " ORDER BY date_surveyed DESC NULLS LAST, survey_id"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	var records []models.AttributeRecord
	err = r.db.SelectContext(ctx, "get_attributes", &records, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get attributes: %w", err)
	}

	return records, totalCount, nil
}

// SaveReportSnapshot creates or replaces the stored report for an asset
func (r *surveyRepository) SaveReportSnapshot(ctx context.Context, snap *models.ReportSnapshot) error {
	query := `
		INSERT INTO reports (asset_id, filter, lengths, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (asset_id) DO UPDATE SET
			filter = EXCLUDED.filter,
			lengths = EXCLUDED.lengths,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, "save_report_snapshot", query,
		snap.AssetID,
		snap.Filter,
		snap.Lengths,
		snap.CreatedAt,
		snap.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to save report snapshot: %w", err)
	}

	return nil
}

// GetReportSnapshot retrieves the stored report for an asset
func (r *surveyRepository) GetReportSnapshot(ctx context.Context, assetID string) (*models.ReportSnapshot, error) {
	query := `
		SELECT id, asset_id, filter, lengths, created_at, updated_at
		FROM reports
		WHERE asset_id = $1
	`

	var snap models.ReportSnapshot
	err := r.db.GetContext(ctx, "get_report_snapshot", &snap, query, assetID)

	if err == sql.ErrNoRows {
		return nil, &NotFoundError{
			Resource: "report",
			ID:       assetID,
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get report snapshot: %w", err)
	}

	return &snap, nil
}

// ListReportSnapshots retrieves stored reports with pagination
func (r *surveyRepository) ListReportSnapshots(ctx context.Context, limit, offset int) ([]*models.ReportSnapshot, error) {
	query := `
		SELECT id, asset_id, filter, lengths, created_at, updated_at
		FROM reports
		ORDER BY asset_id
		LIMIT $1 OFFSET $2
	`

	var snaps []*models.ReportSnapshot
	err := r.db.SelectContext(ctx, "list_report_snapshots", &snaps, query, limit, offset)

	if err != nil {
		return nil, fmt.Errorf("failed to list report snapshots: %w", err)
	}

	return snaps, nil
}

// HealthCheck performs a repository health check
func (r *surveyRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}
