// Package middleware provides HTTP middleware for the ledger API.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type TracingConfig struct {
	ServiceName string
	Enabled     bool
}

// Tracing starts a server span per request for the coop-ledger service.
func Tracing() gin.HandlerFunc {
	return TracingWithConfig(TracingConfig{ServiceName: "coop-ledger", Enabled: true})
}

// TracingWithConfig wraps otelgin. Spans are named after the route pattern,
// e.g. "POST /api/v1/banking/transactions/:id/classify". Health probes are
// not traced.
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return passThrough
	}
	return otelgin.Middleware(cfg.ServiceName,
		otelgin.WithGinFilter(func(c *gin.Context) bool {
			return !strings.HasSuffix(c.FullPath(), "/health")
		}),
	)
}

// SpanErrorMarker sets an error status on spans of 4xx and 5xx responses.
// Mount it after Tracing.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		span := trace.SpanFromContext(c.Request.Context())
		if status < http.StatusBadRequest || !span.IsRecording() {
			return
		}
		span.SetStatus(codes.Error, http.StatusText(status))
		span.SetAttributes(attribute.Int("http.status_code", status))
	}
}

// TracingAttributeInjector tags the request span with request, cooperative
// and admin ids. Mount it after Tracing and the JWT middleware.
func TracingAttributeInjector() gin.HandlerFunc {
	return func(c *gin.Context) {
		if span := trace.SpanFromContext(c.Request.Context()); span.IsRecording() {
			var attrs []attribute.KeyValue
			for key, value := range map[string]string{
				"request_id":     getRequestID(c),
				"cooperative_id": c.GetString(CooperativeIDKey),
				"admin_id":       c.GetString(AdminIDKey),
			} {
				if value != "" {
					attrs = append(attrs, attribute.String(key, value))
				}
			}
			span.SetAttributes(attrs...)
		}
		c.Next()
	}
}
