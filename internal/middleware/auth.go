package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medihub/access-api/pkg/auth"
	apperrors "github.com/medihub/access-api/pkg/errors"
	"github.com/medihub/access-api/pkg/httputil"
)

// Context keys set by the session middleware.
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

type AuthMiddleware struct {
	jwt     auth.JWTService
	enabled bool
}

// NewAuthMiddleware validates bearer tokens with jwt. When enabled is false
// every request passes and path ids are trusted as supplied.
func NewAuthMiddleware(jwt auth.JWTService, enabled bool) *AuthMiddleware {
	return &AuthMiddleware{
		jwt:     jwt,
		enabled: enabled,
	}
}

// Authenticate verifies the bearer token and stores the caller in the context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.enabled {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httputil.RespondWithError(c, apperrors.Unauthorized(nil))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httputil.RespondWithError(c, apperrors.Unauthorized(nil))
			return
		}

		claims, err := m.jwt.Validate(parts[1])
		if err != nil {
			httputil.RespondWithError(c, apperrors.Unauthorized(err))
			return
		}

		userID, _ := claims.UserID()
		c.Set(ContextUserID, userID)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// RequireSelf admits only callers holding role whose id equals the path
// parameter param.
func (m *AuthMiddleware) RequireSelf(role, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.enabled {
			c.Next()
			return
		}

		if c.GetString(ContextRole) != role {
			httputil.RespondWithError(c, apperrors.NewForbidden("this action requires the "+role+" role"))
			return
		}

		pathID, err := uuid.Parse(c.Param(param))
		if err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest("invalid "+param, err))
			return
		}

		userID, ok := c.Get(ContextUserID)
		if !ok || userID.(uuid.UUID) != pathID {
			httputil.RespondWithError(c, apperrors.NewForbidden("cannot act on behalf of another user"))
			return
		}
		c.Next()
	}
}
