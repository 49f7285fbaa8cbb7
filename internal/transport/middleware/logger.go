package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Logger emits one structured line per request. The transform path sets
// X-Fingerprint and X-Cache on the response; both are picked up here so
// the access log ties every request to its cache outcome.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		fields := logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"client_ip":   c.ClientIP(),
			"bytes_out":   c.Writer.Size(),
		}
		if fp := c.Writer.Header().Get("X-Fingerprint"); fp != "" {
			fields["fingerprint"] = fp
			fields["cache"] = c.Writer.Header().Get("X-Cache")
		}

		entry := logrus.WithFields(fields)
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("request failed")
		case c.Writer.Status() >= 400:
			entry.Warn("request rejected")
		default:
			entry.Info("request processed")
		}
	}
}
