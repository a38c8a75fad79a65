package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/prometheus"
)

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/test", func(c *gin.Context) {
		assert.Equal(t, GetRequestID(c), logging.RequestIDFromContext(c.Request.Context()))
		c.String(http.StatusOK, GetRequestID(c))
	})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/test", nil))
	id := w.Header().Get(RequestIDHeader)
	assert.Len(t, id, 36)
	assert.Equal(t, id, w.Body.String())
}

func TestRequestID_ReusesInbound(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w := serve(newEngine(RequestID()), req)
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 200))
	w = serve(newEngine(RequestID()), req)
	assert.Len(t, w.Header().Get(RequestIDHeader), 36, "oversized IDs are replaced")
}

func TestGetRequestID_Empty(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, GetRequestID(c))
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	r := gin.New()
	r.Use(RequestID(), Recovery(logging.NewLoggerFromCore(core)))
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
	assert.NotContains(t, w.Body.String(), "kaboom")
	if assert.Equal(t, 1, logs.Len()) {
		assert.Equal(t, "kaboom", logs.All()[0].ContextMap()["panic"])
	}
}

func TestRequestLogging_Levels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	r := gin.New()
	r.Use(RequestID(), RequestLogging(logging.NewLoggerFromCore(core), prometheus.NewNoopAppMetrics(), DefaultLoggingConfig()))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusBadGateway) })
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, p := range []string{"/ok", "/bad", "/fail", "/healthz"} {
		serve(r, httptest.NewRequest(http.MethodGet, p, nil))
	}

	entries := logs.All()
	if assert.Len(t, entries, 3, "probe paths are not logged") {
		assert.Equal(t, zap.InfoLevel, entries[0].Level)
		assert.Equal(t, zap.WarnLevel, entries[1].Level)
		assert.Equal(t, zap.ErrorLevel, entries[2].Level)
		assert.Equal(t, "/fail", entries[2].ContextMap()["path"])
		assert.NotEmpty(t, entries[2].ContextMap()["request_id"])
	}
}

//Personal.AI order the ending
