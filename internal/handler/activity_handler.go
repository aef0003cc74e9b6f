package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edu-authoring-api/internal/dto"
	"github.com/noah-isme/edu-authoring-api/internal/models"
	"github.com/noah-isme/edu-authoring-api/internal/service"
	appErrors "github.com/noah-isme/edu-authoring-api/pkg/errors"
	"github.com/noah-isme/edu-authoring-api/pkg/response"
)

type rosterService interface {
	GetActivity(ctx context.Context, id string) (*models.Activity, error)
	ListActivities(ctx context.Context, classID string) ([]models.ActivitySummary, error)
	ListSubmissions(ctx context.Context, activityID string, statuses ...models.SubmissionStatus) ([]models.Submission, error)
	RecordAnswers(ctx context.Context, activityID string, student models.UserInfo, answers models.Answers) (*models.Submission, error)
	MarkNotSubmitted(ctx context.Context, activityID, studentID, studentName string) (*models.Submission, error)
}

type activityStatsProvider interface {
	Stats(ctx context.Context, activityID string) (*models.ActivityStats, error)
}

type gradeSheetExporter interface {
	GradeSheet(ctx context.Context, activityID string, format service.ExportFormat) (*service.ExportFile, error)
	PublishGradeSheet(ctx context.Context, activityID string, format service.ExportFormat) (*service.GradeSheetLink, error)
	OpenGradeSheet(token string) (*service.ExportFile, error)
}

// ActivityHandler exposes committed activities, their submissions and grade sheets.
type ActivityHandler struct {
	roster    rosterService
	stats     activityStatsProvider
	exporter  gradeSheetExporter
	validator structValidator
}

// NewActivityHandler constructs an ActivityHandler.
func NewActivityHandler(roster rosterService, stats activityStatsProvider, exporter gradeSheetExporter, validator structValidator) *ActivityHandler {
	return &ActivityHandler{roster: roster, stats: stats, exporter: exporter, validator: validator}
}

// ListByClass godoc
// @Summary List activities of a class
// @Tags Activities
// @Produce json
// @Param classId path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{classId}/activities [get]
func (h *ActivityHandler) ListByClass(c *gin.Context) {
	items, err := h.roster.ListActivities(c.Request.Context(), c.Param("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, map[string]interface{}{"count": len(items)})
}

// Get godoc
// @Summary Get a committed activity
// @Tags Activities
// @Produce json
// @Param id path string true "Activity ID"
// @Success 200 {object} response.Envelope
// @Router /activities/{id} [get]
func (h *ActivityHandler) Get(c *gin.Context) {
	activity, err := h.roster.GetActivity(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, activity)
}

// ListSubmissions godoc
// @Summary List submissions of an activity
// @Tags Submissions
// @Produce json
// @Param id path string true "Activity ID"
// @Param status query []string false "Status filter" collectionFormat(multi)
// @Success 200 {object} response.Envelope
// @Router /activities/{id}/submissions [get]
func (h *ActivityHandler) ListSubmissions(c *gin.Context) {
	var query dto.SubmissionQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submission filter"))
		return
	}
	items, err := h.roster.ListSubmissions(c.Request.Context(), c.Param("id"), query.Status...)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, map[string]interface{}{"count": len(items)})
}

// RecordAnswers godoc
// @Summary Hand in answers for an activity
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Activity ID"
// @Param payload body dto.RecordAnswersRequest true "Answers"
// @Success 201 {object} response.Envelope
// @Router /activities/{id}/submissions [post]
func (h *ActivityHandler) RecordAnswers(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.RecordAnswersRequest
	if !bindJSON(c, h.validator, &req, "invalid answers payload") {
		return
	}
	submission, err := h.roster.RecordAnswers(c.Request.Context(), c.Param("id"), claims.Info(), req.Answers)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, submission)
}

// MarkNotSubmitted godoc
// @Summary Record that a student delivered nothing
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Activity ID"
// @Param payload body dto.MarkNotSubmittedRequest true "Student"
// @Success 201 {object} response.Envelope
// @Router /activities/{id}/submissions/missing [post]
func (h *ActivityHandler) MarkNotSubmitted(c *gin.Context) {
	var req dto.MarkNotSubmittedRequest
	if !bindJSON(c, h.validator, &req, "invalid student payload") {
		return
	}
	submission, err := h.roster.MarkNotSubmitted(c.Request.Context(), c.Param("id"), req.StudentID, req.StudentName)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, submission)
}

// Stats godoc
// @Summary Submission and grading statistics for an activity
// @Tags Activities
// @Produce json
// @Param id path string true "Activity ID"
// @Success 200 {object} response.Envelope
// @Router /activities/{id}/stats [get]
func (h *ActivityHandler) Stats(c *gin.Context) {
	stats, err := h.stats.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats)
}

// Export godoc
// @Summary Download the grade sheet
// @Tags Activities
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Activity ID"
// @Param format query string false "csv or pdf" Enums(csv, pdf)
// @Success 200 {file} file
// @Router /activities/{id}/export [get]
func (h *ActivityHandler) Export(c *gin.Context) {
	file, err := h.exporter.GradeSheet(c.Request.Context(), c.Param("id"), exportFormat(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	sendFile(c, file)
}

// PublishExport godoc
// @Summary Archive the grade sheet and return a signed download link
// @Tags Activities
// @Produce json
// @Param id path string true "Activity ID"
// @Param format query string false "csv or pdf" Enums(csv, pdf)
// @Success 201 {object} response.Envelope
// @Router /activities/{id}/export/link [post]
func (h *ActivityHandler) PublishExport(c *gin.Context) {
	link, err := h.exporter.PublishGradeSheet(c.Request.Context(), c.Param("id"), exportFormat(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, link)
}

// Download serves an archived grade sheet by signed token. The token is the credential.
func (h *ActivityHandler) Download(c *gin.Context) {
	file, err := h.exporter.OpenGradeSheet(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	sendFile(c, file)
}

func exportFormat(c *gin.Context) service.ExportFormat {
	return service.ExportFormat(c.DefaultQuery("format", string(service.ExportCSV)))
}

func sendFile(c *gin.Context, file *service.ExportFile) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
