package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/etution/etution-api/internal/middleware"
	"github.com/etution/etution-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func roleFromContext(c *gin.Context) models.Role {
	value, exists := c.Get(middleware.ContextRoleKey)
	if !exists {
		return ""
	}
	role, ok := value.(models.Role)
	if !ok {
		return ""
	}
	return role
}
