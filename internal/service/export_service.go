package service

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edu-authoring-api/internal/models"
	appErrors "github.com/noah-isme/edu-authoring-api/pkg/errors"
	"github.com/noah-isme/edu-authoring-api/pkg/export"
	"github.com/noah-isme/edu-authoring-api/pkg/storage"
)

// ExportFormat selects the grade sheet renderer.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

var gradeSheetHeaders = []string{"Student", "Student ID", "Status", "Submitted At", "Grade", "Source", "Feedback"}

type gradeSheetSource interface {
	GetActivity(ctx context.Context, id string) (*models.Activity, error)
	ListSubmissions(ctx context.Context, activityID string, statuses ...models.SubmissionStatus) ([]models.Submission, error)
}

type gradeSheetStore interface {
	Save(name string, data []byte) error
	Read(name string) ([]byte, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type downloadSigner interface {
	Sign(subject, path string) (string, time.Time, error)
	Verify(token string) (*storage.Link, error)
}

// ExportFile is a rendered document ready to be streamed.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// GradeSheetLink is a signed, expiring download link for an archived grade sheet.
type GradeSheetLink struct {
	Token     string    `json:"token"`
	Filename  string    `json:"filename"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExportService renders per-activity grade sheets.
type ExportService struct {
	source    gradeSheetSource
	renderers map[ExportFormat]export.Renderer
	store     gradeSheetStore
	signer    downloadSigner
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService with CSV and PDF renderers.
func NewExportService(source gradeSheetSource, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		source: source,
		renderers: map[ExportFormat]export.Renderer{
			ExportCSV: export.NewCSVExporter(),
			ExportPDF: export.NewPDFExporter(),
		},
		logger: logger,
		now:    time.Now,
	}
}

// WithArchive enables shareable links: rendered sheets are stored and served by signed token.
func (s *ExportService) WithArchive(store gradeSheetStore, signer downloadSigner) *ExportService {
	s.store = store
	s.signer = signer
	return s
}

// GradeSheet renders every submission of the activity with its effective grade.
func (s *ExportService) GradeSheet(ctx context.Context, activityID string, format ExportFormat) (*ExportFile, error) {
	renderer, err := s.renderer(format)
	if err != nil {
		return nil, err
	}

	activity, err := s.source.GetActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	submissions, err := s.source.ListSubmissions(ctx, activityID)
	if err != nil {
		return nil, err
	}

	payload, err := renderer.Render(buildGradeSheet(activity, submissions))
	if err != nil {
		s.logger.Error("grade sheet render failed", zap.String("activity_id", activityID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render grade sheet")
	}

	return &ExportFile{
		Filename:    s.buildFilename(activity, renderer.Extension()),
		ContentType: renderer.ContentType(),
		Data:        payload,
	}, nil
}

// PublishGradeSheet renders the sheet, archives it and returns a signed download link.
func (s *ExportService) PublishGradeSheet(ctx context.Context, activityID string, format ExportFormat) (*GradeSheetLink, error) {
	if s.store == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "grade sheet links are not enabled")
	}
	file, err := s.GradeSheet(ctx, activityID, format)
	if err != nil {
		return nil, err
	}

	name := path.Join(activityID, file.Filename)
	if err := s.store.Save(name, file.Data); err != nil {
		s.logger.Error("grade sheet archive failed", zap.String("activity_id", activityID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive grade sheet")
	}
	token, expiresAt, err := s.signer.Sign(activityID, name)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	s.logger.Info("grade sheet published", zap.String("activity_id", activityID), zap.String("file", name))
	return &GradeSheetLink{Token: token, Filename: file.Filename, ExpiresAt: expiresAt}, nil
}

// OpenGradeSheet resolves a download token to the archived file.
func (s *ExportService) OpenGradeSheet(token string) (*ExportFile, error) {
	if s.store == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "download link not found")
	}
	link, err := s.signer.Verify(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "download link invalid or expired")
	}
	data, err := s.store.Read(link.Path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "grade sheet no longer available")
	}

	contentType := "application/octet-stream"
	ext := strings.TrimPrefix(path.Ext(link.Path), ".")
	for _, r := range s.renderers {
		if r.Extension() == ext {
			contentType = r.ContentType()
		}
	}
	return &ExportFile{Filename: path.Base(link.Path), ContentType: contentType, Data: data}, nil
}

// PurgeArchive deletes archived sheets older than ttl.
func (s *ExportService) PurgeArchive(ttl time.Duration) int {
	if s.store == nil {
		return 0
	}
	deleted, err := s.store.CleanupOlderThan(ttl)
	if err != nil {
		s.logger.Warn("grade sheet archive cleanup failed", zap.Error(err))
	}
	if len(deleted) > 0 {
		s.logger.Info("grade sheet archive cleaned", zap.Int("deleted", len(deleted)))
	}
	return len(deleted)
}

func (s *ExportService) renderer(format ExportFormat) (export.Renderer, error) {
	if format == "" {
		format = ExportCSV
	}
	renderer, ok := s.renderers[ExportFormat(strings.ToLower(string(format)))]
	if !ok {
		return nil, appErrors.NewValidationError(map[string]string{"format": "must be csv or pdf"})
	}
	return renderer, nil
}

func buildGradeSheet(activity *models.Activity, submissions []models.Submission) export.Dataset {
	rows := make([]map[string]string, 0, len(submissions))
	var sum float64
	var graded int
	for _, sub := range submissions {
		row := map[string]string{
			"Student":    sub.StudentName,
			"Student ID": sub.StudentID,
			"Status":     string(sub.Status),
		}
		if sub.SubmittedAt != nil {
			row["Submitted At"] = sub.SubmittedAt.UTC().Format("2006-01-02 15:04")
		}
		if grade := sub.EffectiveGrade(); grade != nil {
			row["Grade"] = strconv.FormatFloat(*grade, 'f', -1, 64)
			sum += *grade
			graded++
			if sub.ManualGrade != nil {
				row["Source"] = "teacher"
			} else {
				row["Source"] = "ai"
			}
		}
		if feedback := sub.EffectiveFeedback(); feedback != nil {
			row["Feedback"] = *feedback
		}
		rows = append(rows, row)
	}

	footer := []string{fmt.Sprintf("Max grade: %g", activity.MaxGrade)}
	if graded > 0 {
		footer = append(footer, fmt.Sprintf("Average grade: %.2f (%d graded)", sum/float64(graded), graded))
	}
	return export.Dataset{
		Title:   fmt.Sprintf("%s (due %s)", activity.Title, activity.DueDate),
		Headers: gradeSheetHeaders,
		Rows:    rows,
		Footer:  footer,
	}
}

func (s *ExportService) buildFilename(activity *models.Activity, ext string) string {
	timestamp := s.now().UTC().Format("20060102_150405")
	return fmt.Sprintf("grades_%s_%s.%s", sanitizeFilename(activity.Title), timestamp, ext)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_", "\"", "")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
