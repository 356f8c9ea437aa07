package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lumina-signage/backend/internal/auth"
	"github.com/lumina-signage/backend/internal/models"
	"github.com/lumina-signage/backend/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = "user_id"
	// ContextUserRole is the key for user role in gin context.
	ContextUserRole = "user_role"
	// ContextUserEmail is the key for user email in gin context.
	ContextUserEmail = "user_email"
	// ContextDisplayID is the key for display ID when the token is a device token.
	ContextDisplayID = "display_id"
)

// JWT returns a middleware that validates JWT and sets claims in context.
// User tokens set ContextUserID; device tokens (role "display") set
// ContextDisplayID from the subject instead.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
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
		if claims.Role == string(models.RoleDisplay) {
			displayID, err := uuid.Parse(claims.Subject)
			if err != nil {
				response.Unauthorized(c, "invalid device token")
				c.Abort()
				return
			}
			c.Set(ContextDisplayID, displayID)
			c.Set(ContextUserRole, claims.Role)
			c.Next()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}

// RequireUser rejects device tokens on user-only routes.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(ContextUserID); !ok {
			response.Forbidden(c, "user token required")
			c.Abort()
			return
		}
		c.Next()
	}
}
