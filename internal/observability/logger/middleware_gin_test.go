package logger

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLevel(t *testing.T) {
	cases := []struct {
		route     string
		status    int
		errorType string
		want      zapcore.Level
	}{
		{"/health", http.StatusOK, "", zapcore.DebugLevel},
		{"/metrics", http.StatusInternalServerError, "", zapcore.DebugLevel},
		{"/drivers/:driverCode/uploads", http.StatusBadRequest, "validation_error", zapcore.DebugLevel},
		{"/drivers/:driverCode/uploads", http.StatusTooManyRequests, "rate_limited", zapcore.WarnLevel},
		{"/drivers/:driverCode/payroll", http.StatusNotFound, "not_found", zapcore.InfoLevel},
		{"/payroll/recalculate", http.StatusBadGateway, "upstream_error", zapcore.ErrorLevel},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, requestLevel(tc.route, tc.status, tc.errorType), "%s %d", tc.route, tc.status)
	}
}

func TestGinMiddleware_TagsDriverAndBatch(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{
		ErrorClassifier: func(error) (string, string) { return "validation_error", "no_rows" },
	}))
	r.POST("/drivers/:driverCode/uploads", func(c *gin.Context) {
		c.Set("upload_batch_id", "01HBATCH")
		_ = c.Error(errors.New("no_rows"))
		c.Status(http.StatusBadRequest)
	})

	req := httptest.NewRequest(http.MethodPost, "/drivers/DRV-3/uploads", nil)
	req.Header.Set("X-Request-Id", "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get("X-Request-Id"))
	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)

	fields := entries[0].ContextMap()
	assert.Equal(t, "req-42", fields["request_id"])
	assert.Equal(t, "DRV-3", fields["driver_code"])
	assert.Equal(t, "01HBATCH", fields["upload_batch_id"])
	assert.Equal(t, "no_rows", fields["error_code"])
	assert.Equal(t, "/drivers/:driverCode/uploads", fields["route"])
}

func TestGinMiddleware_GeneratesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}
