package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// RequestID assigns a request id, reusing a well-formed incoming X-Request-ID
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(RequestIDHeader)
		if reqID == "" || len(reqID) > 128 {
			reqID = uuid.NewString()
		}

		c.Set(requestIDKey, reqID)
		c.Writer.Header().Set(RequestIDHeader, reqID)

		c.Next()
	}
}

// GetRequestID returns the request id stored in the gin context
func GetRequestID(c *gin.Context) string {
	if v, exists := c.Get(requestIDKey); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
