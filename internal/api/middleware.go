package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/opsagents/pkg/logger"
)

// RequestLogger logs each request with method, path, status and
// latency.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}
