package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medihub/access-api/pkg/errors"
	"github.com/medihub/access-api/pkg/httputil"
)

// SizeLimit rejects bodies larger than maxBytes.
func SizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			httputil.RespondWithError(c, errors.NewBadRequest("request body too large", nil))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
