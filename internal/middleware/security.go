package middleware

import (
	"github.com/gin-gonic/gin"
)

// SecurityHeaders marks every response as uncacheable and sets the usual
// hardening headers. Responses may contain access codes or records.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Header("Pragma", "no-cache")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "no-referrer")
		c.Next()
	}
}
