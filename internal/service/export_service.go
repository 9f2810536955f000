package service

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/study-planner-api/internal/models"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
	"github.com/noah-isme/study-planner-api/pkg/export"
)

const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

var planExportHeaders = []string{"week", "position", "date", "subject", "front", "lesson", "completed"}

type datasetRenderer interface {
	ContentType() string
	Extension() string
	Render(data export.Dataset) ([]byte, error)
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportService renders study plans as printable files.
type ExportService struct {
	renderers map[string]datasetRenderer
	logger    *zap.Logger
}

// NewExportService constructs an ExportService; nil renderers fall back to the defaults.
func NewExportService(logger *zap.Logger, csv, pdf datasetRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter(',')
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		renderers: map[string]datasetRenderer{ExportFormatCSV: csv, ExportFormatPDF: pdf},
		logger:    logger,
	}
}

// RenderPlan builds the plan table and renders it in format (csv when empty).
func (s *ExportService) RenderPlan(plan *models.StudyPlan, items []models.ScheduleItem, lessons map[string]models.LessonRow, format string) (*ExportFile, error) {
	if plan == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "study plan not found")
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedFormat, fmt.Sprintf("unsupported export format %q", format))
	}

	body, err := renderer.Render(planDataset(plan, items, lessons))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render study plan")
	}
	s.logger.Debug("study plan exported", zap.String("plan_id", plan.ID), zap.String("format", format), zap.Int("bytes", len(body)))

	return &ExportFile{
		Filename:    fmt.Sprintf("study-plan-%s.%s", plan.StartDate.Format("20060102"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Body:        body,
	}, nil
}

func planDataset(plan *models.StudyPlan, items []models.ScheduleItem, lessons map[string]models.LessonRow) export.Dataset {
	ordered := make([]models.ScheduleItem, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].WeekNumber != ordered[j].WeekNumber {
			return ordered[i].WeekNumber < ordered[j].WeekNumber
		}
		return ordered[i].Position < ordered[j].Position
	})

	rows := make([]map[string]string, 0, len(ordered))
	for _, item := range ordered {
		row := map[string]string{
			"week":      strconv.Itoa(item.WeekNumber),
			"position":  strconv.Itoa(item.Position),
			"lesson":    item.LessonID,
			"completed": "no",
		}
		if item.ScheduledDate != nil {
			row["date"] = item.ScheduledDate.Format("2006-01-02")
		}
		if item.Completed {
			row["completed"] = "yes"
		}
		if lesson, ok := lessons[item.LessonID]; ok {
			row["subject"] = lesson.SubjectName
			row["front"] = lesson.FrontName
			row["lesson"] = lesson.LessonName
		}
		rows = append(rows, row)
	}

	title := plan.Name
	if title == "" {
		title = "Study plan"
	}
	return export.Dataset{
		Title:   fmt.Sprintf("%s (%s to %s)", title, plan.StartDate.Format("2006-01-02"), plan.EndDate.Format("2006-01-02")),
		Headers: planExportHeaders,
		Rows:    rows,
	}
}
