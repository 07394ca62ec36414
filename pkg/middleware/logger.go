package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/tartanilla-earnings/pkg/logger"
	"go.uber.org/zap"
)

// RequestLogger logs one entry per request once the handler chain returns.
// Server errors log at error level, client errors at warn.
func RequestLogger(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("service", serviceName),
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
			zap.Int("response_size", c.Writer.Size()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		reqLogger := logger.WithContext(c.Request.Context())
		switch {
		case status >= 500:
			reqLogger.Error("Request completed with server error", fields...)
		case status >= 400:
			reqLogger.Warn("Request completed with client error", fields...)
		default:
			reqLogger.Info("Request completed", fields...)
		}
	}
}
