package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ravikumarmistry/quix/pkg/logger"
)

// RequestLogger logs one line per request after it completes.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		line := "%s %s %d %s sub=%q"
		args := []interface{}{c.Request.Method, c.Request.URL.Path, status, time.Since(start), Subject(c)}
		switch {
		case status >= 500:
			logger.Errorf(line, args...)
		case status >= 400:
			logger.Warnf(line, args...)
		default:
			logger.Debugf(line, args...)
		}
	}
}
