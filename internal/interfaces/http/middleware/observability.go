// Package middleware holds the gin middleware of the invoicer HTTP surface: request
// identity, logging, recovery, observability, rate limiting, sessions and signed URLs.
package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/invoicer/internal/application/dto"
	"github.com/turtacn/invoicer/internal/infrastructure/monitoring"
	"github.com/turtacn/invoicer/pkg/constants"
	"github.com/turtacn/invoicer/pkg/errors"
	"github.com/turtacn/invoicer/pkg/logger"
)

// RequestID reuses the inbound X-Request-ID or mints one, echoes it back and stores it
// in the request context for log correlation.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(constants.HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Header(constants.HeaderRequestID, id)
		c.Set(string(constants.ContextKeyRequestID), id)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), constants.ContextKeyRequestID, id))
		c.Next()
	}
}

// Observability starts a server span per request and records request metrics.
// Metrics are labeled with the route template to keep cardinality low.
func Observability(tm *monitoring.TracingManager, metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		ctx := tm.ExtractTraceContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tm.StartSpan(ctx, c.Request.Method+" "+c.FullPath(), trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if sc := span.SpanContext(); sc.HasTraceID() {
			ctx = context.WithValue(ctx, constants.ContextKeyTraceID, sc.TraceID().String())
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "not_found"
		}
		status := c.Writer.Status()
		metrics.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(status), time.Since(start))

		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.String("http.client_ip", c.ClientIP()),
		)
	}
}

// Logging logs one line per finished request.
func Logging(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := logger.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}
		if c.Writer.Status() >= 500 {
			log.Warn(c.Request.Context(), "Request failed", fields)
			return
		}
		log.Info(c.Request.Context(), "Request processed", fields)
	}
}

// Recovery turns panics into a generic 500 response.
func Recovery(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error(c.Request.Context(), "Panic recovered", fmt.Errorf("panic: %v", r),
					logger.String("path", c.Request.URL.Path))
				if !c.Writer.Written() {
					dto.SendError(c, errors.ErrInternal)
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}
