package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mailmirror/core/internal/monitoring"
)

// HTTPMetrics records request count and latency for every response
// against the shared Metrics registry.
func HTTPMetrics(metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)
		statusCode := strconv.Itoa(c.Writer.Status())
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		metrics.RecordHTTPRequest(c.Request.Method, endpoint, statusCode, duration)
	}
}

// PanicMetrics recovers a panicking handler, records it against the
// panic counter, logs it with a stack trace, and replies 500 instead
// of crashing the process. The router's sole recovery middleware: a
// deferred recover here is the only place downstream of HTTPMetrics
// that still runs on an unwinding panic, so this is also where
// PanicsTotal gets incremented.
func PanicMetrics(metrics *monitoring.Metrics, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				metrics.RecordPanic()
				log.Error("panic recovered",
					zap.Any("error", err),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.String("ip", c.ClientIP()),
					zap.Stack("stack"),
				)
				c.JSON(500, gin.H{"error": "internal server error"})
				c.Abort()
			}
		}()
		c.Next()
	}
}
