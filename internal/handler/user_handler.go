package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/etution/etution-api/internal/models"
	"github.com/etution/etution-api/internal/service"
	appErrors "github.com/etution/etution-api/pkg/errors"
	"github.com/etution/etution-api/pkg/response"
)

// UserHandler exposes the role lookup, the public tutor directory,
// self-service profile edits, and admin account management.
type UserHandler struct {
	users *service.UserService
	roles *service.RoleService
}

// NewUserHandler creates a new handler.
func NewUserHandler(users *service.UserService, roles *service.RoleService) *UserHandler {
	return &UserHandler{users: users, roles: roles}
}

// Role godoc
// @Summary Resolve role by email
// @Description Returns the role for an email. Callers may look up their own
// @Description email; admins may look up anyone. The lookup falls back to
// @Description student when no account matches.
// @Tags Users
// @Produce json
// @Param email path string true "Email"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users/role/{email} [get]
func (h *UserHandler) Role(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	email := c.Param("email")
	if email != claims.Email && roleFromContext(c) != models.RoleAdmin {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "can only look up your own role"))
		return
	}

	role := h.roles.Resolve(c.Request.Context(), email)
	response.JSON(c, http.StatusOK, gin.H{"email": email, "role": role}, nil)
}

// Tutors godoc
// @Summary Latest tutors
// @Description Public directory of the most recently registered active tutors
// @Tags Users
// @Produce json
// @Param limit query int false "Max tutors to return"
// @Success 200 {object} response.Envelope
// @Router /tutors/latest [get]
func (h *UserHandler) Tutors(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "12"))

	tutors, err := h.users.LatestTutors(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, tutors, nil)
}

// UpdateProfile godoc
// @Summary Update own profile
// @Description Changes the signed-in user's display name and photo
// @Tags Users
// @Accept json
// @Produce json
// @Param payload body models.UpdateProfileRequest true "Profile fields"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /users/profile [patch]
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, user, nil)
}

// List godoc
// @Summary List users
// @Description Admin listing of accounts with filters
// @Tags Users
// @Produce json
// @Param role query string false "Filter by role"
// @Param search query string false "Search email or name"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/users [get]
func (h *UserHandler) List(c *gin.Context) {
	filter := models.UserFilter{
		Search:    c.Query("search"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if roleParam := c.Query("role"); roleParam != "" {
		role := models.Role(roleParam)
		if !role.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown role filter"))
			return
		}
		filter.Role = &role
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	users, pagination, err := h.users.List(c.Request.Context(), filter, roleFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, users, pagination)
}

// ChangeRole godoc
// @Summary Change a user's role
// @Description Admin role assignment; invalidates the cached role
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body object true "New role"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/users/{id}/role [patch]
func (h *UserHandler) ChangeRole(c *gin.Context) {
	var payload struct {
		Role models.Role `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	user, err := h.users.ChangeRole(c.Request.Context(), c.Param("id"), payload.Role, claimsFromContext(c), roleFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, user, nil)
}

// Delete godoc
// @Summary Deactivate a user
// @Description Admin soft-delete; revokes sessions and cached role
// @Tags Users
// @Produce json
// @Param id path string true "User ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/users/{id} [delete]
func (h *UserHandler) Delete(c *gin.Context) {
	if err := h.users.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c), roleFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
