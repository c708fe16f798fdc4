package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"road-survey-platform/internal/config"
	"road-survey-platform/internal/handlers"
	"road-survey-platform/internal/repository"
	"road-survey-platform/internal/schema"
	"road-survey-platform/internal/services"
	"road-survey-platform/pkg/database"
	"road-survey-platform/pkg/logging"
	"road-survey-platform/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := logging.New("road-survey-api", cfg.Logging.Level)

	logger.WithFields(logging.Fields{
		"server_host": cfg.Server.Host,
		"server_port": cfg.Server.Port,
		"db_host":     cfg.Database.Host,
		"db_name":     cfg.Database.Database,
	}).Info("starting road survey API server")

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("road_survey")

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
	reportService := services.NewReportService(surveyRepo, doc, logger, metricsCollector)
	exportService := services.NewExportService(logger, metricsCollector)

	// Initialize handlers
	reportHandler := handlers.NewReportHandler(reportService, exportService, surveyRepo, logger, metricsCollector)

	// Setup router
	router := mux.NewRouter()

	// Register routes
	reportHandler.RegisterRoutes(router)

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.WithField("address", server.Addr).Info("HTTP server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server shutdown failed")
		os.Exit(1)
	}

	logger.Info("server stopped")
}
