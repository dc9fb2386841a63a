package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/etution/etution-api/internal/authz"
	"github.com/etution/etution-api/internal/models"
	"github.com/etution/etution-api/internal/service"
	appErrors "github.com/etution/etution-api/pkg/errors"
	"github.com/etution/etution-api/pkg/response"
)

// ContextRoleKey is the gin context key storing the resolved role.
const ContextRoleKey = "currentRole"

// ResolveRole looks up the caller's role by email and stores it in the
// context. Tokens carry identity only, so every protected request resolves
// the role here; the resolver caches and fails open to student.
func ResolveRole(roles *service.RoleService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if exists {
			claims := claimsValue.(*models.JWTClaims)
			c.Set(ContextRoleKey, roles.Resolve(c.Request.Context(), claims.Email))
		}
		c.Next()
	}
}

// RequireRoles gates a route on the resolved role. An empty role list only
// requires an authenticated identity.
func RequireRoles(required ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		var claims *models.JWTClaims
		if claimsValue, exists := c.Get(ContextUserKey); exists {
			claims = claimsValue.(*models.JWTClaims)
		}
		var role models.Role
		if roleValue, exists := c.Get(ContextRoleKey); exists {
			role = roleValue.(models.Role)
		}

		result := authz.Authorize(claims, role, false, required...)
		if result.Decision == authz.Allow {
			c.Next()
			return
		}

		if result.Redirect == authz.RedirectSignIn {
			response.Error(c, appErrors.ErrUnauthorized)
		} else {
			response.Error(c, appErrors.ErrForbidden)
		}
		c.Abort()
	}
}
