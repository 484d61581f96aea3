package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/festpass/registration-backend/internal/services"
)

// Metrics records request latency and counts by route template
func Metrics(metricsSvc *services.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			// unmatched routes share one label
			path = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
