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

// TuitionHandler wires HTTP endpoints to the tuition service.
type TuitionHandler struct {
	service *service.TuitionService
}

// NewTuitionHandler creates a new handler.
func NewTuitionHandler(svc *service.TuitionService) *TuitionHandler {
	return &TuitionHandler{service: svc}
}

// Create godoc
// @Summary Post a tuition request
// @Description Students create a post; it stays pending until moderated
// @Tags Tuitions
// @Accept json
// @Produce json
// @Param payload body models.CreateTuitionRequest true "Tuition payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /tuitions [post]
func (h *TuitionHandler) Create(c *gin.Context) {
	var req models.CreateTuitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid tuition payload"))
		return
	}

	post, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c), roleFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, post)
}

// List godoc
// @Summary List tuition posts
// @Description Approved posts are public; owners see their own in any status
// @Tags Tuitions
// @Produce json
// @Param status query string false "Status filter (owner or admin only)"
// @Param subject query string false "Subject filter"
// @Param search query string false "Search subject, location, description"
// @Param mine query bool false "Only the caller's own posts"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /tuitions [get]
func (h *TuitionHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)

	filter := models.TuitionFilter{
		Subject:   c.Query("subject"),
		Search:    c.Query("search"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if statusParam := c.Query("status"); statusParam != "" {
		status := models.TuitionStatus(statusParam)
		filter.Status = &status
	}
	if mine, _ := strconv.ParseBool(c.Query("mine")); mine && claims != nil {
		filter.OwnerEmail = claims.Email
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	posts, pagination, err := h.service.List(c.Request.Context(), filter, claims, roleFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, posts, pagination)
}

// Get godoc
// @Summary Get one tuition post
// @Tags Tuitions
// @Produce json
// @Param id path string true "Post ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /tuitions/{id} [get]
func (h *TuitionHandler) Get(c *gin.Context) {
	post, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c), roleFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, post, nil)
}

// Update godoc
// @Summary Edit a pending tuition post
// @Description Only the owning student may edit, while the post is pending
// @Tags Tuitions
// @Accept json
// @Produce json
// @Param id path string true "Post ID"
// @Param payload body models.UpdateTuitionRequest true "Tuition payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /tuitions/{id} [put]
func (h *TuitionHandler) Update(c *gin.Context) {
	var req models.UpdateTuitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid tuition payload"))
		return
	}

	post, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claimsFromContext(c), roleFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, post, nil)
}

// Moderate godoc
// @Summary Approve or reject a pending post
// @Description Admin moderation; approved and rejected are terminal
// @Tags Tuitions
// @Accept json
// @Produce json
// @Param id path string true "Post ID"
// @Param payload body models.ModerateTuitionRequest true "Moderation decision"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /tuitions/{id}/status [patch]
func (h *TuitionHandler) Moderate(c *gin.Context) {
	var req models.ModerateTuitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid moderation payload"))
		return
	}

	post, err := h.service.Moderate(c.Request.Context(), c.Param("id"), req, claimsFromContext(c), roleFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, post, nil)
}

// Delete godoc
// @Summary Delete a tuition post
// @Description Owners withdraw pending posts; admins may remove approved ones
// @Tags Tuitions
// @Produce json
// @Param id path string true "Post ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /tuitions/{id} [delete]
func (h *TuitionHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c), roleFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
