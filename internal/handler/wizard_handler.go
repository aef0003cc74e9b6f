package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edu-authoring-api/internal/dto"
	"github.com/noah-isme/edu-authoring-api/internal/models"
	"github.com/noah-isme/edu-authoring-api/pkg/response"
)

type wizardService interface {
	StartSession(ctx context.Context, teacherID string) (*models.WizardSession, error)
	GetSession(ctx context.Context, id, teacherID string) (*models.WizardSession, error)
	SelectClass(ctx context.Context, id, teacherID, classID string) (*models.WizardSession, error)
	SelectMode(ctx context.Context, id, teacherID string, mode models.WizardMode) (*models.WizardSession, error)
	ApplyTemplate(ctx context.Context, id, teacherID, templateID string) (*models.WizardSession, error)
	GenerateActivity(ctx context.Context, id, teacherID, brief string) (*models.WizardSession, error)
	GenerateQuestions(ctx context.Context, id, teacherID, brief string, opts models.GenerationOptions, replace bool) (*models.WizardSession, error)
	CancelGeneration(ctx context.Context, id, teacherID string) (*models.WizardSession, error)
	UpdateDraft(ctx context.Context, id, teacherID string, patch dto.DraftPatch) (*models.WizardSession, error)
	AddQuestion(ctx context.Context, id, teacherID string, question models.Question) (*models.WizardSession, error)
	UpdateQuestion(ctx context.Context, id, teacherID, questionID string, patch dto.QuestionPatch) (*models.WizardSession, error)
	RemoveQuestion(ctx context.Context, id, teacherID, questionID string) (*models.WizardSession, error)
	Review(ctx context.Context, id, teacherID string) (*models.WizardSession, error)
	Submit(ctx context.Context, id, teacherID string) (*dto.SubmitWizardResponse, error)
	Cancel(ctx context.Context, id, teacherID string) (*models.WizardSession, error)
}

// WizardHandler drives activity authoring sessions.
type WizardHandler struct {
	service   wizardService
	validator structValidator
}

// NewWizardHandler constructs a WizardHandler.
func NewWizardHandler(service wizardService, validator structValidator) *WizardHandler {
	return &WizardHandler{service: service, validator: validator}
}

// Start godoc
// @Summary Start an authoring session
// @Tags Wizard
// @Produce json
// @Success 201 {object} response.Envelope
// @Router /wizard/sessions [post]
func (h *WizardHandler) Start(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	session, err := h.service.StartSession(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// Get godoc
// @Summary Get an authoring session
// @Tags Wizard
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /wizard/sessions/{id} [get]
func (h *WizardHandler) Get(c *gin.Context) {
	h.respond(c, func(ctx context.Context, teacherID string) (*models.WizardSession, error) {
		return h.service.GetSession(ctx, c.Param("id"), teacherID)
	})
}

// Cancel godoc
// @Summary Abandon the draft and restart the session
// @Tags Wizard
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /wizard/sessions/{id} [delete]
func (h *WizardHandler) Cancel(c *gin.Context) {
	h.respond(c, func(ctx context.Context, teacherID string) (*models.WizardSession, error) {
		return h.service.Cancel(ctx, c.Param("id"), teacherID)
	})
}

// SelectClass godoc
// @Summary Pick the class for the draft
// @Tags Wizard
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.SelectClassRequest true "Class"
// @Success 200 {object} response.Envelope
// @Router /wizard/sessions/{id}/class [post]
func (h *WizardHandler) SelectClass(c *gin.Context) {
	var req dto.SelectClassRequest
	if !bindJSON(c, h.validator, &req, "invalid class payload") {
		return
	}
	h.respond(c, func(ctx context.Context, teacherID string) (*models.WizardSession, error) {
		return h.service.SelectClass(ctx, c.Param("id"), teacherID, req.ClassID)
	})
}

// SelectMode godoc
// @Summary Pick manual, template or AI authoring
// @Tags Wizard
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.SelectModeRequest true "Mode"
// @Success 200 {object} response.Envelope
// @Router /wizard/sessions/{id}/mode [post]
func (h *WizardHandler) SelectMode(c *gin.Context) {
	var req dto.SelectModeRequest
	if !bindJSON(c, h.validator, &req, "invalid mode payload") {
		return
	}
	h.respond(c, func(ctx context.Context, teacherID string) (*models.WizardSession, error) {
		return h.service.SelectMode(ctx, c.Param("id"), teacherID, req.Mode)
	})
}

// ApplyTemplate godoc
// @Summary Pre-fill the draft from a template
// @Tags Wizard
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.ApplyTemplateRequest true "Template"
// @Success 200 {object} response.Envelope
// @Router /wizard/sessions/{id}/template [post]
func (h *WizardHandler) ApplyTemplate(c *gin.Context) {
	var req dto.ApplyTemplateRequest
	if !bindJSON(c, h.validator, &req, "invalid template payload") {
		return
	}
	h.respond(c, func(ctx context.Context, teacherID string) (*models.WizardSession, error) {
		return h.service.ApplyTemplate(ctx, c.Param("id"), teacherID, req.TemplateID)
	})
}

// GenerateActivity godoc
// @Summary Generate a whole activity from a brief
// @Description Generation runs in the background; poll the session until it leaves the generating state.
// @Tags Wizard
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.GenerateActivityRequest true "Brief"
// @Success 202 {object} response.Envelope
// @Router /wizard/sessions/{id}/generate [post]
func (h *WizardHandler) GenerateActivity(c *gin.Context) {
	var req dto.GenerateActivityRequest
	if !bindJSON(c, h.validator, &req, "invalid generation payload") {
		return
	}
	h.respondAccepted(c, func(ctx context.Context, teacherID string) (*models.WizardSession, error) {
		return h.service.GenerateActivity(ctx, c.Param("id"), teacherID, req.Brief)
	})
}

// GenerateQuestions godoc
// @Summary Generate question drafts for the current draft
// @Tags Wizard
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.GenerateQuestionsRequest true "Question generation"
// @Success 202 {object} response.Envelope
// @Router /wizard/sessions/{id}/questions/generate [post]
func (h *WizardHandler) GenerateQuestions(c *gin.Context) {
	var req dto.GenerateQuestionsRequest
	if !bindJSON(c, h.validator, &req, "invalid generation payload") {
		return
	}
	h.respondAccepted(c, func(ctx context.Context, teacherID string) (*models.WizardSession, error) {
		return h.service.GenerateQuestions(ctx, c.Param("id"), teacherID, req.Brief, req.Options(), req.Replace)
	})
}

// CancelGeneration godoc
// @Summary Abandon an in-flight generation
// @Tags Wizard
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /wizard/sessions/{id}/generation [delete]
func (h *WizardHandler) CancelGeneration(c *gin.Context) {
	h.respond(c, func(ctx context.Context, teacherID string) (*models.WizardSession, error) {
		return h.service.CancelGeneration(ctx, c.Param("id"), teacherID)
	})
}

// UpdateDraft godoc
// @Summary Edit draft fields
// @Tags Wizard
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.DraftPatch true "Draft fields"
// @Success 200 {object} response.Envelope
// @Router /wizard/sessions/{id}/draft [patch]
func (h *WizardHandler) UpdateDraft(c *gin.Context) {
	var patch dto.DraftPatch
	if !bindJSON(c, nil, &patch, "invalid draft payload") {
		return
	}
	h.respond(c, func(ctx context.Context, teacherID string) (*models.WizardSession, error) {
		return h.service.UpdateDraft(ctx, c.Param("id"), teacherID, patch)
	})
}

// AddQuestion godoc
// @Summary Add a question to the draft
// @Tags Wizard
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.QuestionRequest true "Question"
// @Success 201 {object} response.Envelope
// @Router /wizard/sessions/{id}/questions [post]
func (h *WizardHandler) AddQuestion(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.QuestionRequest
	if !bindJSON(c, nil, &req, "invalid question payload") {
		return
	}
	session, err := h.service.AddQuestion(c.Request.Context(), c.Param("id"), claims.UserID, req.Question())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// UpdateQuestion godoc
// @Summary Edit a draft question
// @Tags Wizard
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param questionId path string true "Question ID"
// @Param payload body dto.QuestionPatch true "Question fields"
// @Success 200 {object} response.Envelope
// @Router /wizard/sessions/{id}/questions/{questionId} [patch]
func (h *WizardHandler) UpdateQuestion(c *gin.Context) {
	var patch dto.QuestionPatch
	if !bindJSON(c, nil, &patch, "invalid question payload") {
		return
	}
	h.respond(c, func(ctx context.Context, teacherID string) (*models.WizardSession, error) {
		return h.service.UpdateQuestion(ctx, c.Param("id"), teacherID, c.Param("questionId"), patch)
	})
}

// RemoveQuestion godoc
// @Summary Remove a draft question
// @Tags Wizard
// @Produce json
// @Param id path string true "Session ID"
// @Param questionId path string true "Question ID"
// @Success 200 {object} response.Envelope
// @Router /wizard/sessions/{id}/questions/{questionId} [delete]
func (h *WizardHandler) RemoveQuestion(c *gin.Context) {
	h.respond(c, func(ctx context.Context, teacherID string) (*models.WizardSession, error) {
		return h.service.RemoveQuestion(ctx, c.Param("id"), teacherID, c.Param("questionId"))
	})
}

// Review godoc
// @Summary Move the draft to review
// @Tags Wizard
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /wizard/sessions/{id}/review [post]
func (h *WizardHandler) Review(c *gin.Context) {
	h.respond(c, func(ctx context.Context, teacherID string) (*models.WizardSession, error) {
		return h.service.Review(ctx, c.Param("id"), teacherID)
	})
}

// Submit godoc
// @Summary Validate and commit the draft to the class roster
// @Tags Wizard
// @Produce json
// @Param id path string true "Session ID"
// @Success 201 {object} response.Envelope
// @Router /wizard/sessions/{id}/submit [post]
func (h *WizardHandler) Submit(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	result, err := h.service.Submit(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

func (h *WizardHandler) respond(c *gin.Context, call func(ctx context.Context, teacherID string) (*models.WizardSession, error)) {
	h.respondWith(c, http.StatusOK, call)
}

func (h *WizardHandler) respondAccepted(c *gin.Context, call func(ctx context.Context, teacherID string) (*models.WizardSession, error)) {
	h.respondWith(c, http.StatusAccepted, call)
}

func (h *WizardHandler) respondWith(c *gin.Context, status int, call func(ctx context.Context, teacherID string) (*models.WizardSession, error)) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	session, err := call(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, status, session)
}
