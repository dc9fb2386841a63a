package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/etution/etution-api/internal/models"
)

func rbacRouter(required ...models.Role) (*gin.Engine, func(claims *models.JWTClaims, role models.Role) *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	var claims *models.JWTClaims
	var role models.Role
	router.Use(func(c *gin.Context) {
		if claims != nil {
			c.Set(ContextUserKey, claims)
		}
		if role != "" {
			c.Set(ContextRoleKey, role)
		}
		c.Next()
	})
	router.GET("/", RequireRoles(required...), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	do := func(cl *models.JWTClaims, r models.Role) *httptest.ResponseRecorder {
		claims, role = cl, r
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
		return recorder
	}
	return router, do
}

func TestRequireRolesAllowsMatch(t *testing.T) {
	_, do := rbacRouter(models.RoleAdmin)

	recorder := do(&models.JWTClaims{UserID: "u1", Email: "admin@example.com"}, models.RoleAdmin)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestRequireRolesRejectsAnonymous(t *testing.T) {
	_, do := rbacRouter(models.RoleAdmin)

	recorder := do(nil, "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestRequireRolesRejectsWrongRole(t *testing.T) {
	_, do := rbacRouter(models.RoleAdmin)

	recorder := do(&models.JWTClaims{UserID: "u1", Email: "student@example.com"}, models.RoleStudent)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestRequireRolesIdentityOnly(t *testing.T) {
	_, do := rbacRouter()

	recorder := do(&models.JWTClaims{UserID: "u1", Email: "anyone@example.com"}, models.RoleStudent)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}
