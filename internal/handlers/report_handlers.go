package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"road-survey-platform/internal/repository"
	"road-survey-platform/internal/services"
	"road-survey-platform/pkg/logging"
	"road-survey-platform/pkg/metrics"
)

// ReportHandler handles survey report API endpoints
type ReportHandler struct {
	reportService *services.ReportService
	exportService *services.ExportService
	repo          repository.SurveyRepository
	logger        *logging.Logger
	metrics       *metrics.Collector
}

// NewReportHandler creates a new report handler
func NewReportHandler(
	reportService *services.ReportService,
	exportService *services.ExportService,
	repo repository.SurveyRepository,
	logger *logging.Logger,
	metricsCollector *metrics.Collector,
) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
		exportService: exportService,
		repo:          repo,
		logger:        logger,
		metrics:       metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

// ListRoads handles GET /api/roads
func (h *ReportHandler) ListRoads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		duration := time.Since(startTime)
		h.metrics.APIRequestDuration.WithLabelValues("/api/roads").Observe(duration.Seconds())
	}()

	page, limit := pagination(r)
	offset := (page - 1) * limit

	roads, err := h.repo.ListRoads(ctx, limit, offset)
	if err != nil {
		h.logger.WithRequest(r).WithError(err).Error("failed to list roads")
		h.metrics.RecordAPIError("internal_error", "/api/roads")
		h.sendError(w, r, "failed to retrieve roads", http.StatusInternalServerError)
		return
	}

	response := PaginatedResponse{
		Data:  roads,
		Total: len(roads),
		Page:  page,
		Limit: limit,
	}

	h.metrics.RecordAPIRequest("/api/roads", "GET", "200")
	h.sendJSON(w, response, http.StatusOK)
}

// GetAttributes handles GET /api/roads/{assetId}/attributes
func (h *ReportHandler) GetAttributes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		duration := time.Since(startTime)
		h.metrics.APIRequestDuration.WithLabelValues("/api/roads/attributes").Observe(duration.Seconds())
	}()

	assetID := mux.Vars(r)["assetId"]

	page, limit := pagination(r)
	offset := (page - 1) * limit

	filter := repository.AttributeFilter{
		AssetID: &assetID,
		Limit:   limit,
		Offset:  offset,
	}

	if attr := r.URL.Query().Get("primary_attribute"); attr != "" {
		filter.PrimaryAttribute = &attr
	}

	if after := r.URL.Query().Get("surveyed_after"); after != "" {
		t, err := time.Parse("2006-01-02", after)
		if err != nil {
			h.sendError(w, r, "invalid surveyed_after format, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		filter.SurveyedAfter = &t
	}

	if before := r.URL.Query().Get("surveyed_before"); before != "" {
		t, err := time.Parse("2006-01-02", before)
		if err != nil {
			h.sendError(w, r, "invalid surveyed_before format, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		filter.SurveyedBefore = &t
	}

	records, total, err := h.repo.GetAttributes(ctx, filter)
	if err != nil {
		h.logger.WithRequest(r).WithError(err).Error("failed to get attributes")
		h.metrics.RecordAPIError("internal_error", "/api/roads/attributes")
		h.sendError(w, r, "failed to retrieve attributes", http.StatusInternalServerError)
		return
	}

	totalPages := (total + limit - 1) / limit

	response := PaginatedResponse{
		Data:       records,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}

	h.metrics.RecordAPIRequest("/api/roads/attributes", "GET", "200")
	h.sendJSON(w, response, http.StatusOK)
}

// GetReport handles GET /api/roads/{assetId}/report
func (h *ReportHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		duration := time.Since(startTime)
		h.metrics.APIRequestDuration.WithLabelValues("/api/roads/report").Observe(duration.Seconds())
	}()

	assetID := mux.Vars(r)["assetId"]

	opts, ok := h.reportOptions(w, r)
	if !ok {
		return
	}

	rep, err := h.reportService.BuildRoadReport(ctx, assetID, opts)
	if err != nil {
		h.logger.WithRequest(r).WithError(err).Error("failed to build report")
		h.metrics.RecordAPIError("internal_error", "/api/roads/report")
		h.sendError(w, r, "failed to build report", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/roads/report", "GET", "200")
	h.sendJSON(w, rep, http.StatusOK)
}

// ExportReport handles GET /api/roads/{assetId}/report/export
func (h *ReportHandler) ExportReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		duration := time.Since(startTime)
		h.metrics.APIRequestDuration.WithLabelValues("/api/roads/report/export").Observe(duration.Seconds())
	}()

	assetID := mux.Vars(r)["assetId"]

	opts, ok := h.reportOptions(w, r)
	if !ok {
		return
	}

	rep, err := h.reportService.BuildRoadReport(ctx, assetID, opts)
	if err != nil {
		h.logger.WithRequest(r).WithError(err).Error("failed to build report for export")
		h.metrics.RecordAPIError("internal_error", "/api/roads/report/export")
		h.sendError(w, r, "failed to build report", http.StatusInternalServerError)
		return
	}

	workbook, err := h.exportService.ExportWorkbook(opts.PrimaryAttribute, rep.Columns, rep.Rows)
	if err != nil {
		h.logger.WithRequest(r).WithError(err).Error("failed to export workbook")
		h.metrics.RecordAPIError("export_error", "/api/roads/report/export")
		h.sendError(w, r, "failed to export report", http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("%s-%s.xlsx", assetID, opts.PrimaryAttribute)

	h.metrics.RecordAPIRequest("/api/roads/report/export", "GET", "200")
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(workbook)
}

// GetNetworkSummary handles GET /api/network/summary
func (h *ReportHandler) GetNetworkSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		duration := time.Since(startTime)
		h.metrics.APIRequestDuration.WithLabelValues("/api/network/summary").Observe(duration.Seconds())
	}()

	primary := r.URL.Query().Get("primary_attribute")
	if primary == "" {
		h.sendError(w, r, "primary_attribute is required", http.StatusBadRequest)
		return
	}

	rows, columns, err := h.reportService.NetworkSummary(ctx, primary)
	if err != nil {
		h.logger.WithRequest(r).WithError(err).Error("failed to build network summary")
		h.metrics.RecordAPIError("internal_error", "/api/network/summary")
		h.sendError(w, r, "failed to build network summary", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"primary_attribute": primary,
		"rows":              rows,
		"columns":           columns,
	}

	h.metrics.RecordAPIRequest("/api/network/summary", "GET", "200")
	h.sendJSON(w, response, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *ReportHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.repo.HealthCheck(ctx); err != nil {
		h.sendJSON(w, map[string]string{
			"status":    "unhealthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}, http.StatusServiceUnavailable)
		return
	}

	h.sendJSON(w, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}, http.StatusOK)
}

// reportOptions parses the shared report query parameters.
func (h *ReportHandler) reportOptions(w http.ResponseWriter, r *http.Request) (services.ReportOptions, bool) {
	primary := r.URL.Query().Get("primary_attribute")
	if primary == "" {
		h.sendError(w, r, "primary_attribute is required", http.StatusBadRequest)
		return services.ReportOptions{}, false
	}

	opts := services.ReportOptions{
		PrimaryAttribute: primary,
		ReturnAllEntries: r.URL.Query().Get("all_entries") == "true",
	}

	if cutoff := r.URL.Query().Get("date_cutoff"); cutoff != "" {
		t, err := time.Parse("2006-01-02", cutoff)
		if err != nil {
			h.sendError(w, r, "invalid date_cutoff format, expected YYYY-MM-DD", http.StatusBadRequest)
			return services.ReportOptions{}, false
		}
		opts.DateCutoff = &t
	}

	return opts, true
}

// pagination parses page and limit query parameters with defaults.
func pagination(r *http.Request) (page, limit int) {
	page = 1
	limit = 100

	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}

	return page, limit
}

// sendJSON sends a JSON response
func (h *ReportHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *ReportHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	h.metrics.RecordAPIRequest(r.URL.Path, r.Method, strconv.Itoa(statusCode))

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all report API routes
func (h *ReportHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/roads", h.ListRoads).Methods("GET")
	router.HandleFunc("/api/roads/{assetId}/attributes", h.GetAttributes).Methods("GET")
	router.HandleFunc("/api/roads/{assetId}/report", h.GetReport).Methods("GET")
	router.HandleFunc("/api/roads/{assetId}/report/export", h.ExportReport).Methods("GET")
	router.HandleFunc("/api/network/summary", h.GetNetworkSummary).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}
