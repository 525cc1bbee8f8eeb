package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/embarque/internal/observability"
)

// LoggingMiddleware emits one slog line per request and feeds the
// latency histogram. Nearly all traffic multiplexes over /v1/sync, so
// the path label stays low-cardinality; the per-action breakdown lives
// in the actions counter instead.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		logFn := slog.Info
		if status >= http.StatusInternalServerError {
			logFn = slog.Error
		}
		logFn("request",
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration", duration.String(),
			"ip", c.ClientIP(),
		)

		observability.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			strconv.Itoa(status),
		).Observe(duration.Seconds())
	}
}
