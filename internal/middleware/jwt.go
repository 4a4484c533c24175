package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/upeu-eventos/gateway/internal/auth"
	"github.com/upeu-eventos/gateway/internal/upstream"
	"github.com/upeu-eventos/gateway/pkg/response"
)

// Re-exported so handlers outside auth read the same keys.
const (
	ContextUserID    = auth.ContextUserID
	ContextUserRole  = auth.ContextUserRole
	ContextUserEmail = auth.ContextUserEmail
	ContextSession   = auth.ContextSession
	ContextUser      = auth.ContextUser
)

// JWT returns a middleware that validates the gateway JWT, loads its session and
// attaches the session's upstream token to the request context.
func JWT(jwtService *auth.JWTService, sessions *auth.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		s, err := sessions.Current(c.Request.Context(), claims.SessionID)
		if err != nil {
			response.Unauthorized(c, "session expired")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		c.Set(ContextUserEmail, claims.Email)
		c.Set(ContextSession, claims.SessionID)
		c.Set(ContextUser, s.User)
		c.Request = c.Request.WithContext(upstream.WithToken(c.Request.Context(), s.UpstreamToken))
		c.Next()
	}
}
