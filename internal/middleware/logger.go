package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RequestLogger writes one structured log line per request
func RequestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"ip":         c.ClientIP(),
			"request_id": GetRequestID(c),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			entry.Error("http_request")
		case status >= 400:
			entry.Warn("http_request")
		default:
			entry.Info("http_request")
		}
	}
}
