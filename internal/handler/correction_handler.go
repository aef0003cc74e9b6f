package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edu-authoring-api/internal/dto"
	"github.com/noah-isme/edu-authoring-api/internal/models"
	"github.com/noah-isme/edu-authoring-api/pkg/response"
)

type correctionService interface {
	Correct(ctx context.Context, submissionID string) (*models.Submission, error)
	BatchCorrect(ctx context.Context, activityID string) (*models.BatchCorrectionResult, error)
	EnqueueBatch(ctx context.Context, activityID string) (*models.CorrectionJob, error)
	Confirm(ctx context.Context, submissionID, teacherID string) (*models.Submission, error)
	ForceReview(ctx context.Context, submissionID, teacherID, reason string) (*models.Submission, error)
	Finalize(ctx context.Context, submissionID, teacherID string, grade float64, feedback string) (*models.Submission, error)
}

// CorrectionHandler exposes AI correction and teacher triage endpoints.
type CorrectionHandler struct {
	service   correctionService
	validator structValidator
}

// NewCorrectionHandler constructs a CorrectionHandler.
func NewCorrectionHandler(service correctionService, validator structValidator) *CorrectionHandler {
	return &CorrectionHandler{service: service, validator: validator}
}

// BatchCorrect godoc
// @Summary Correct every pending submission of an activity
// @Tags Corrections
// @Produce json
// @Param id path string true "Activity ID"
// @Success 200 {object} response.Envelope
// @Router /activities/{id}/corrections [post]
func (h *CorrectionHandler) BatchCorrect(c *gin.Context) {
	result, err := h.service.BatchCorrect(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// EnqueueBatch godoc
// @Summary Queue a batch correction for background processing
// @Tags Corrections
// @Produce json
// @Param id path string true "Activity ID"
// @Success 202 {object} response.Envelope
// @Router /activities/{id}/corrections/async [post]
func (h *CorrectionHandler) EnqueueBatch(c *gin.Context) {
	job, err := h.service.EnqueueBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, dto.CorrectionJobResponse{JobID: job.ID, ActivityID: job.ActivityID, Status: "queued"})
}

// Correct godoc
// @Summary Run AI correction on one submission
// @Tags Corrections
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/correct [post]
func (h *CorrectionHandler) Correct(c *gin.Context) {
	submission, err := h.service.Correct(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, submission)
}

// Confirm godoc
// @Summary Accept the AI grade as final
// @Tags Corrections
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/confirm [post]
func (h *CorrectionHandler) Confirm(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	submission, err := h.service.Confirm(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, submission)
}

// ForceReview godoc
// @Summary Send a submission to manual review
// @Tags Corrections
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.ForceReviewRequest false "Reason"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/review [post]
func (h *CorrectionHandler) ForceReview(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.ForceReviewRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, nil, &req, "invalid review payload") {
		return
	}
	submission, err := h.service.ForceReview(c.Request.Context(), c.Param("id"), claims.UserID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, submission)
}

// Finalize godoc
// @Summary Record the teacher's final grade
// @Tags Corrections
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.FinalizeRequest true "Grade"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/finalize [post]
func (h *CorrectionHandler) Finalize(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.FinalizeRequest
	if !bindJSON(c, h.validator, &req, "invalid grade payload") {
		return
	}
	submission, err := h.service.Finalize(c.Request.Context(), c.Param("id"), claims.UserID, *req.Grade, req.Feedback)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission)
}
