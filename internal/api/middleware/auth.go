package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/veilgate/aegis/internal/services"
)

// Context keys populated by AuthMiddleware.
const (
	UserKey      = "user"
	RoleKey      = "role"
	SubjectIDKey = "subject_id"
)

// AuthMiddleware validates the bearer token and attaches the authenticated
// account to the request context.
func AuthMiddleware(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		if token == header || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Bearer token required"})
			return
		}

		user, err := authService.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(UserKey, user)
		c.Set(RoleKey, user.Role)
		c.Set(SubjectIDKey, user.SubjectID)
		c.Next()
	}
}

// RequireRole aborts with 403 unless the authenticated account holds one of
// the given roles. Resolver and policy-write endpoints use this to restrict
// access to service-level callers.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		current, _ := c.Get(RoleKey)
		role, _ := current.(string)
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
	}
}
