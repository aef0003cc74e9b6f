package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edu-authoring-api/internal/models"
	"github.com/noah-isme/edu-authoring-api/pkg/response"
)

type templateCatalog interface {
	List() []models.ActivityTemplate
}

// TemplateHandler exposes the activity template catalog.
type TemplateHandler struct {
	catalog templateCatalog
}

// NewTemplateHandler constructs a TemplateHandler.
func NewTemplateHandler(catalog templateCatalog) *TemplateHandler {
	return &TemplateHandler{catalog: catalog}
}

// List godoc
// @Summary List activity templates
// @Tags Templates
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /templates [get]
func (h *TemplateHandler) List(c *gin.Context) {
	templates := h.catalog.List()
	response.JSON(c, http.StatusOK, templates, map[string]interface{}{"count": len(templates)})
}
