package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
)

// Timeout caps the request context. The transform endpoints get a
// generous budget because remove_background may legitimately run long.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
