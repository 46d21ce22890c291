package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/NTA1210/learning-management-system-sub007/internal/models"
	appErrors "github.com/NTA1210/learning-management-system-sub007/pkg/errors"
	"github.com/NTA1210/learning-management-system-sub007/pkg/response"
)

// RequireRoles rejects callers whose role is not in the allowed set.
// Finer-grained checks (course membership, self-access, edit windows)
// live in the services; this only gates whole routes.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, ok := claimsValue.(*models.JWTClaims)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
