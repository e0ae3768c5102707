package handlers

import (
	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-ID"
	loggerKey       = "logger"
)

// RequestID echoes the caller's X-Request-ID, or generates one, and stores a
// log entry carrying it on the context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Set(loggerKey, log.WithFields(log.Fields{
			"request_id": id,
			"method":     c.Request.Method,
			"route":      c.FullPath(),
		}))
		c.Next()
	}
}
