package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/homemic/sleep-server/internal/auth"
	"github.com/homemic/sleep-server/pkg/response"
)

// ContextClient is the key for the authenticated client name in gin context.
const ContextClient = "client"

// Auth validates either a Bearer JWT (dashboard) or the X-Device-Key header
// (node agents, which have no token exchange step).
func Auth(jwtService *auth.JWTService, deviceKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := c.GetHeader("X-Device-Key"); key != "" {
			if subtle.ConstantTimeCompare([]byte(key), []byte(deviceKey)) == 1 {
				c.Set(ContextClient, "agent")
				c.Next()
				return
			}
			response.Unauthorized(c, "invalid device key")
			c.Abort()
			return
		}

		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization")
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
		c.Set(ContextClient, claims.Client)
		c.Next()
	}
}
