package middleware

import (
	"context"

	"github.com/coopledger/backend/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
)

// Profiling attaches Pyroscope labels (method, route, cooperative) to the
// CPU samples of each request so profiles can be filtered by endpoint.
// Place it after the JWT middleware; health checks are not labelled.
func Profiling(enabled bool) gin.HandlerFunc {
	if !enabled {
		return passThrough
	}
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" || route == "/health" || route == "/api/v1/health" {
			c.Next()
			return
		}
		labels := map[string]string{
			telemetry.ProfilingLabelMethod:      c.Request.Method,
			telemetry.ProfilingLabelRoute:       route,
			telemetry.ProfilingLabelCooperative: c.GetString(CooperativeIDKey),
		}
		telemetry.WithProfilingLabels(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}
