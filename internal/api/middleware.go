package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/salary-bot/internal/utils"
)

// RequestLogger returns a Gin middleware that logs each request
func RequestLogger(logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		if status >= 500 {
			logger.Error("%s %s %d %s", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
			return
		}
		logger.Info("%s %s %d %s", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
	}
}
