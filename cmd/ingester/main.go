package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"road-survey-platform/internal/config"
	"road-survey-platform/internal/models"
	"road-survey-platform/internal/repository"
	"road-survey-platform/internal/schema"
	"road-survey-platform/internal/services"
	"road-survey-platform/pkg/database"
	"road-survey-platform/pkg/logging"
	"road-survey-platform/pkg/metrics"
)

func main() {
	// Parse command-line flags
	dataDir := flag.String("data-dir", "./survey_data", "Directory containing survey data files")
	batchSize := flag.Int("batch-size", 1000, "Number of records to insert in each batch")
	rebuildReports := flag.Bool("rebuild-reports", false, "Rebuild report snapshots after ingestion")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := logging.New("road-survey-ingester", cfg.Logging.Level)

	ctx := context.Background()
	logger.WithFields(logging.Fields{
		"data_dir":        *dataDir,
		"batch_size":      *batchSize,
		"rebuild_reports": *rebuildReports,
	}).Info("starting survey data ingestion")

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("road_survey_ingester")

	// Load attribute schema
	doc := schema.DefaultDocument()
	if cfg.Schema.Path != "" {
		doc, err = schema.LoadDocument(cfg.Schema.Path)
		if err != nil {
			logger.WithError(err).WithField("path", cfg.Schema.Path).Fatal("failed to load schema document")
		}
	}

	// Initialize database
	dbConfig := &database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}

	db, err := database.NewPostgresDB(dbConfig, logger, metricsCollector)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	// Initialize repository
	surveyRepo := repository.NewSurveyRepository(db, logger, metricsCollector)

	// Initialize services
	ingestionService := services.NewIngestionService(surveyRepo, logger, metricsCollector, *batchSize)
	reportService := services.NewReportService(surveyRepo, doc, logger, metricsCollector)

	// Ingest data
	result, err := ingestionService.IngestDirectory(ctx, *dataDir)
	if err != nil {
		logger.WithError(err).Fatal("ingestion failed")
	}

	// Print results
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("INGESTION COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Files Processed:  %d\n", result.FilesProcessed)
	fmt.Printf("Records Inserted: %d\n", result.RecordsInserted)
	fmt.Printf("Records Skipped:  %d\n", result.RecordsSkipped)
	fmt.Printf("Duration:         %v\n", result.Duration)
	if result.Duration.Seconds() > 0 {
		fmt.Printf("Records/Second:   %.2f\n", float64(result.RecordsInserted)/result.Duration.Seconds())
	}

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for i, errMsg := range result.Errors {
			if i < 10 {
				fmt.Printf("  - %s\n", errMsg)
			}
		}
		if len(result.Errors) > 10 {
			fmt.Printf("  ... and %d more errors\n", len(result.Errors)-10)
		}
	}

	// Rebuild report snapshots if requested
	if *rebuildReports {
		fmt.Println("\n" + strings.Repeat("=", 80))
		fmt.Println("REBUILDING REPORT SNAPSHOTS")
		fmt.Println(strings.Repeat("=", 80))

		rebuilt := 0
		offset := 0
		for {
			roads, err := surveyRepo.ListRoads(ctx, 500, offset)
			if err != nil {
				logger.WithError(err).Fatal("failed to list roads")
			}
			if len(roads) == 0 {
				break
			}

			for _, road := range roads {
				assetID := models.FormatAssetID(models.AssetPrefixRoad, road.RoadID)
				if err := reportService.RefreshReportSnapshot(ctx, assetID); err != nil {
					logger.WithError(err).WithField("asset_id", assetID).Error("snapshot rebuild failed")
					continue
				}
				rebuilt++
			}

			offset += len(roads)
			if len(roads) < 500 {
				break
			}
		}

		fmt.Printf("Snapshots rebuilt: %d\n", rebuilt)
	}
}
