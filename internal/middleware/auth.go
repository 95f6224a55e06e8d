package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hirewire/chat-service/internal/directory"
	"github.com/hirewire/chat-service/pkg/response"
)

// ContextUserID is the gin context key holding the authenticated user id.
const ContextUserID = "user_id"

// Auth verifies the bearer token on REST requests and stores the user
// id on the context. Websocket connections authenticate in-band instead.
func Auth(tokens directory.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			response.Unauthorized(c, "authorization header must be a bearer token")
			c.Abort()
			return
		}

		claims, err := tokens.Verify(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Next()
	}
}

// UserID returns the authenticated user id set by Auth.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}
