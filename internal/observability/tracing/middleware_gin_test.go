package tracing

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestGinMiddlewarePassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSafeAttributesDropsEmptyStrings(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", ""),
		attribute.String("http.method", "GET"),
		attribute.Int("http.status_code", 200),
	)
	assert.Len(t, attrs, 2)
}

func TestSafeErrorKeepsRootMessage(t *testing.T) {
	root := errors.New("insufficient_credits")
	err := SafeError(fmt.Errorf("debit tenant 42: %w", root))
	assert.EqualError(t, err, "insufficient_credits")
	assert.Nil(t, SafeError(nil))
}
