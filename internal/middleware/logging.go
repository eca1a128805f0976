package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"docuquery-go/pkg/log"
)

// RequestLogger records one structured line per request. Bodies are not
// logged: uploads are binary and ask payloads can carry whole policy
// questions.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)
	}
}
