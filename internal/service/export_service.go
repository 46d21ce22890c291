package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/NTA1210/learning-management-system-sub007/internal/models"
	appErrors "github.com/NTA1210/learning-management-system-sub007/pkg/errors"
	"github.com/NTA1210/learning-management-system-sub007/pkg/export"
)

// ReportFormat selects the export rendering.
type ReportFormat string

const (
	ReportFormatJSON ReportFormat = "json"
	ReportFormatCSV  ReportFormat = "csv"
	ReportFormatPDF  ReportFormat = "pdf"
)

// ExportRequest scopes an attendance report. The embedded filter follows
// the same permission rules as listing.
type ExportRequest struct {
	ListAttendanceRequest
	Format string `json:"format" validate:"omitempty,oneof=json csv pdf"`
}

// ExportResult carries either the structured payload (JSON) or the
// rendered bytes (CSV/PDF).
type ExportResult struct {
	Format      ReportFormat              `json:"format"`
	Records     []models.AttendanceDetail `json:"records,omitempty"`
	Summary     *models.StatusSummary     `json:"summary,omitempty"`
	Content     []byte                    `json:"-"`
	Filename    string                    `json:"-"`
	ContentType string                    `json:"-"`
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type exportAttendanceReader interface {
	ListAllDetails(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceDetail, error)
	StatusSummary(ctx context.Context, filter models.AttendanceFilter) (*models.StatusSummary, error)
}

// ExportService renders a filtered record set as a structured or flat
// report with a status summary.
type ExportService struct {
	attendance *AttendanceService
	repo       exportAttendanceReader
	csv        csvRenderer
	pdf        pdfRenderer
	logger     *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(attendance *AttendanceService, repo exportAttendanceReader, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{attendance: attendance, repo: repo, csv: csv, pdf: pdf, logger: logger}
}

var exportHeaders = []string{"studentName", "studentEmail", "course", "date", "status", "markedBy", "markedByRole"}

// Export resolves the filter through the management gate and renders the
// full matching record set in the requested format.
func (s *ExportService) Export(ctx context.Context, req ExportRequest, actor models.Actor) (*ExportResult, error) {
	if err := s.attendance.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export request")
	}
	format := ReportFormat(req.Format)
	if format == "" {
		format = ReportFormatJSON
	}

	filter, err := s.attendance.resolveManagedFilter(ctx, req.ListAttendanceRequest, actor)
	if err != nil {
		return nil, err
	}
	records, err := s.repo.ListAllDetails(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance records")
	}
	summary, err := s.repo.StatusSummary(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise attendance")
	}

	result := &ExportResult{Format: format}
	switch format {
	case ReportFormatJSON:
		result.Records = records
		result.Summary = summary
		return result, nil
	case ReportFormatCSV:
		payload, err := s.csv.Render(buildExportDataset(records))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv report")
		}
		result.Content = payload
		result.Filename = exportFilename(req.CourseID, "csv")
		result.ContentType = "text/csv"
		return result, nil
	case ReportFormatPDF:
		payload, err := s.pdf.Render(buildExportDataset(records), "Attendance Report")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf report")
		}
		result.Content = payload
		result.Filename = exportFilename(req.CourseID, "pdf")
		result.ContentType = "application/pdf"
		return result, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", req.Format))
	}
}

// buildExportDataset flattens records into report rows. Missing populated
// fields degrade to empty strings; the student column prefers the full
// name over the login-style username.
func buildExportDataset(records []models.AttendanceDetail) export.Dataset {
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, []string{
			record.DisplayName(),
			deref(record.StudentEmail),
			deref(record.CourseName),
			record.Date.Format("2006-01-02"),
			string(record.Status),
			markerName(record),
			deref(record.MarkedByRole),
		})
	}
	return export.Dataset{Headers: exportHeaders, Rows: rows}
}

func markerName(record models.AttendanceDetail) string {
	if record.MarkedByName != nil && *record.MarkedByName != "" {
		return *record.MarkedByName
	}
	return record.MarkedBy
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func exportFilename(courseID, ext string) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	if courseID == "" {
		courseID = "all"
	}
	return fmt.Sprintf("attendance_%s_%s.%s", courseID, timestamp, ext)
}
