package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edu-authoring-api/internal/middleware"
	"github.com/noah-isme/edu-authoring-api/internal/models"
	appErrors "github.com/noah-isme/edu-authoring-api/pkg/errors"
	"github.com/noah-isme/edu-authoring-api/pkg/response"
)

type structValidator interface {
	ValidateStruct(s interface{}) error
}

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// requireClaims writes 401 and returns nil when the request carries no principal.
func requireClaims(c *gin.Context) *models.JWTClaims {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil
	}
	return claims
}

// bindJSON decodes the body into req and runs its validation tags.
func bindJSON(c *gin.Context, v structValidator, req interface{}, message string) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	if v != nil {
		if err := v.ValidateStruct(req); err != nil {
			response.Error(c, err)
			return false
		}
	}
	return true
}
