package services

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"road-survey-platform/internal/models"
	"road-survey-platform/internal/repository"
	"road-survey-platform/pkg/logging"
	"road-survey-platform/pkg/metrics"
)

// surveyLineFields is the field count of one tab-separated survey line:
// road_id, road_code, primary_attribute, chainage_start, chainage_end,
// survey_id, user_id, date_surveyed, added_by, value.
const surveyLineFields = 10

// IngestionResult summarizes one ingestion run
type IngestionResult struct {
	FilesProcessed  int
	RecordsInserted int
	RecordsSkipped  int
	Errors          []string
	Duration        time.Duration
}

// IngestionService loads tab-separated survey files into storage
type IngestionService struct {
	repo      repository.SurveyRepository
	logger    *logging.Logger
	metrics   *metrics.Collector
	batchSize int
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(repo repository.SurveyRepository, logger *logging.Logger, metricsCollector *metrics.Collector, batchSize int) *IngestionService {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &IngestionService{
		repo:      repo,
		logger:    logger,
		metrics:   metricsCollector,
		batchSize: batchSize,
	}
}

// IngestDirectory processes every .txt survey file in a directory.
// A bad line is skipped and reported; a bad file aborts the run.
func (s *IngestionService) IngestDirectory(ctx context.Context, dir string) (*IngestionResult, error) {
	timer := s.metrics.NewTimer(s.metrics.IngestionDuration)
	start := time.Now()

	result := &IngestionResult{}

	files, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, fmt.Errorf("failed to list survey files: %w", err)
	}

	if len(files) == 0 {
		s.logger.WithField("dir", dir).Warn("no survey files found")
		result.Duration = time.Since(start)
		return result, nil
	}

	s.logger.WithFields(logging.Fields{
		"dir":   dir,
		"files": len(files),
	}).Info("starting survey ingestion")

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		inserted, skipped, errs, err := s.ingestFile(ctx, file)
		if err != nil {
			s.metrics.RecordIngestionError("file_error")
			return result, fmt.Errorf("failed to ingest %s: %w", filepath.Base(file), err)
		}

		result.FilesProcessed++
		result.RecordsInserted += inserted
		result.RecordsSkipped += skipped
		result.Errors = append(result.Errors, errs...)
	}

	result.Duration = timer.ObserveDuration()

	s.logger.WithFields(logging.Fields{
		"files":    result.FilesProcessed,
		"inserted": result.RecordsInserted,
		"skipped":  result.RecordsSkipped,
		"duration": result.Duration.String(),
	}).Info("survey ingestion completed")

	return result, nil
}

// ingestFile processes a single survey file in batches.
func (s *IngestionService) ingestFile(ctx context.Context, path string) (inserted, skipped int, errs []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, nil, err
	}
	defer f.Close()

	name := filepath.Base(path)
	roads := map[int64]*models.Road{}
	batch := make([]*models.AttributeRecord, 0, s.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.repo.CreateAttributesBatch(ctx, batch); err != nil {
			return err
		}
		inserted += len(batch)
		batch = batch[:0]
		return nil
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		raw, err := parseSurveyLine(line)
		if err != nil {
			skipped++
			s.metrics.RecordIngestionError("parse_error")
			errs = append(errs, fmt.Sprintf("%s:%d: %v", name, lineNo, err))
			continue
		}

		rec, err := raw.ToAttributeRecord()
		if err != nil {
			skipped++
			s.metrics.RecordIngestionError("validation_error")
			errs = append(errs, fmt.Sprintf("%s:%d: %v", name, lineNo, err))
			continue
		}

		if _, ok := roads[raw.RoadID]; !ok {
			now := time.Now().UTC()
			roads[raw.RoadID] = &models.Road{
				RoadID:    raw.RoadID,
				RoadCode:  raw.RoadCode,
				CreatedAt: now,
				UpdatedAt: now,
			}
		}

		batch = append(batch, rec)
		if len(batch) >= s.batchSize {
			if err := flush(); err != nil {
				return inserted, skipped, errs, err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return inserted, skipped, errs, err
	}

	if err := flush(); err != nil {
		return inserted, skipped, errs, err
	}

	for _, road := range roads {
		if err := s.repo.UpsertRoad(ctx, road); err != nil {
			return inserted, skipped, errs, err
		}
	}

	s.logger.WithFields(logging.Fields{
		"file":     name,
		"inserted": inserted,
		"skipped":  skipped,
		"roads":    len(roads),
	}).Info("survey file processed")

	return inserted, skipped, errs, nil
}

// parseSurveyLine splits one tab-separated line into a raw survey record.
func parseSurveyLine(line string) (*models.RawSurveyLine, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != surveyLineFields {
		return nil, fmt.Errorf("expected %d fields, got %d", surveyLineFields, len(fields))
	}

	roadID, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid road_id %q", fields[0])
	}

	chainageStart, err := strconv.ParseFloat(strings.TrimSpace(fields[3]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chainage_start %q", fields[3])
	}

	chainageEnd, err := strconv.ParseFloat(strings.TrimSpace(fields[4]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chainage_end %q", fields[4])
	}

	surveyID, err := strconv.ParseInt(strings.TrimSpace(fields[5]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid survey_id %q", fields[5])
	}

	userID := int64(0)
	if v := strings.TrimSpace(fields[6]); v != "" {
		userID, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user_id %q", fields[6])
		}
	}

	return &models.RawSurveyLine{
		RoadID:           roadID,
		RoadCode:         strings.TrimSpace(fields[1]),
		PrimaryAttribute: strings.TrimSpace(fields[2]),
		ChainageStart:    chainageStart,
		ChainageEnd:      chainageEnd,
		SurveyID:         surveyID,
		UserID:           userID,
		DateSurveyed:     strings.TrimSpace(fields[7]),
		AddedBy:          strings.TrimSpace(fields[8]),
		Value:            fields[9],
	}, nil
}
