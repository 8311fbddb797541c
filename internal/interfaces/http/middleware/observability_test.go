package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/invoicer/internal/config"
	"github.com/turtacn/invoicer/internal/infrastructure/monitoring"
	"github.com/turtacn/invoicer/pkg/constants"
	"github.com/turtacn/invoicer/pkg/logger"
)

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		id, _ := c.Request.Context().Value(constants.ContextKeyRequestID).(string)
		c.String(http.StatusOK, id)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, w.Body.String(), 36)
	assert.Equal(t, w.Body.String(), w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Body.String())
}

func TestObservability(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tm, err := monitoring.NewTracingManager(&config.TracingConfig{Enabled: false}, logger.NewNoopLogger())
	require.NoError(t, err)
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())

	r := gin.New()
	r.Use(Observability(tm, metrics))
	r.GET("/invoices/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/invoices/42", nil))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("GET", "/invoices/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("GET", "not_found", "404")))
}

type capturingLogger struct {
	logger.Logger
	buf *bytes.Buffer
}

func (l capturingLogger) Info(ctx context.Context, msg string, fields ...logger.Fields) {
	l.buf.WriteString(msg + ";")
}

func (l capturingLogger) Warn(ctx context.Context, msg string, fields ...logger.Fields) {
	l.buf.WriteString(msg + ";")
}

func (l capturingLogger) Error(ctx context.Context, msg string, err error, fields ...logger.Fields) {
	l.buf.WriteString(msg + ":" + err.Error() + ";")
}

func TestRecoveryAndLogging(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	log := capturingLogger{Logger: logger.NewNoopLogger(), buf: &buf}

	r := gin.New()
	r.Use(Logging(log), Recovery(log))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"message":"An unexpected error occurred"}`, w.Body.String())
	assert.Contains(t, buf.String(), "Panic recovered:panic: boom")
	assert.Contains(t, buf.String(), "Request failed")

	buf.Reset()
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, "Request processed;", buf.String())
}
