package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(captured *string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) {
		*captured = Value(c)
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestMiddlewareReusesClientID(t *testing.T) {
	var captured string
	r := newRouter(&captured)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(headerKey, "client-id-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "client-id-1", captured)
	assert.Equal(t, "client-id-1", w.Header().Get(headerKey))
}

func TestMiddlewareGeneratesWhenMissingOrOversized(t *testing.T) {
	var captured string
	r := newRouter(&captured)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(headerKey, strings.Repeat("x", maxLength+1))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Len(t, captured, 36)
	assert.Equal(t, captured, w.Header().Get(headerKey))
}
