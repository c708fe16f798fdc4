package services

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"road-survey-platform/internal/report"
	"road-survey-platform/pkg/logging"
	"road-survey-platform/pkg/metrics"
)

// ExportService renders summary rows into spreadsheet workbooks
type ExportService struct {
	logger  *logging.Logger
	metrics *metrics.Collector
}

// NewExportService creates a new export service
func NewExportService(logger *logging.Logger, metricsCollector *metrics.Collector) *ExportService {
	return &ExportService{
		logger:  logger,
		metrics: metricsCollector,
	}
}

// ExportWorkbook writes summary rows to a single-sheet xlsx workbook.
// Columns appear in registry order; a row without a value for a flattened
// secondary column leaves that cell empty.
func (s *ExportService) ExportWorkbook(sheet string, columns []report.Column, rows []report.SummaryRow) ([]byte, error) {
	timer := s.metrics.NewTimer(s.metrics.ExportDuration)
	defer timer.ObserveDuration()

	if sheet == "" {
		sheet = "Summary"
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]interface{}, 0, len(columns))
	for _, col := range columns {
		header = append(header, col.Title)
	}
	if err := writeRow(f, sheet, 1, header); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err == nil && len(columns) > 0 {
		end, _ := excelize.CoordinatesToCellName(len(columns), 1)
		f.SetCellStyle(sheet, "A1", end, headerStyle)
	}

	for i, row := range rows {
		cells := make([]interface{}, 0, len(columns))
		for _, col := range columns {
			switch col.Name {
			case "title":
				cells = append(cells, row.Title)
			case "distance":
				cells = append(cells, row.Distance)
			default:
				cells = append(cells, row.Secondary[col.Name])
			}
		}
		if err := writeRow(f, sheet, i+2, cells); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	s.logger.WithFields(logging.Fields{
		"sheet":   sheet,
		"rows":    len(rows),
		"columns": len(columns),
	}).Debug("workbook exported")

	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, rowNum int, cells []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("failed to compute cell name: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("failed to write row %d: %w", rowNum, err)
	}
	return nil
}
