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

// ApplicationHandler wires HTTP endpoints to the application service.
type ApplicationHandler struct {
	service *service.ApplicationService
}

// NewApplicationHandler creates a new handler.
func NewApplicationHandler(svc *service.ApplicationService) *ApplicationHandler {
	return &ApplicationHandler{service: svc}
}

// Apply godoc
// @Summary Apply to a tuition post
// @Description Tutors bid on approved posts; one application per post
// @Tags Applications
// @Accept json
// @Produce json
// @Param payload body models.ApplyRequest true "Application payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications [post]
func (h *ApplicationHandler) Apply(c *gin.Context) {
	var req models.ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid application payload"))
		return
	}

	app, err := h.service.Apply(c.Request.Context(), req, claimsFromContext(c), roleFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, app)
}

// List godoc
// @Summary List applications
// @Description Students see bids on their posts, tutors see their own bids
// @Tags Applications
// @Produce json
// @Param status query string false "Status filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /applications [get]
func (h *ApplicationHandler) List(c *gin.Context) {
	filter := models.ApplicationFilter{}
	if statusParam := c.Query("status"); statusParam != "" {
		status := models.ApplicationStatus(statusParam)
		filter.Status = &status
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	apps, pagination, err := h.service.List(c.Request.Context(), filter, claimsFromContext(c), roleFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, apps, pagination)
}

// Get godoc
// @Summary Get one application
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	app, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c), roleFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Update godoc
// @Summary Update an application
// @Description Students may reject; tutors may revise the expected salary.
// @Description Approval only ever happens through a confirmed payment.
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body models.UpdateApplicationRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{id} [patch]
func (h *ApplicationHandler) Update(c *gin.Context) {
	var req models.UpdateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid application payload"))
		return
	}

	app, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claimsFromContext(c), roleFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Delete godoc
// @Summary Withdraw an application
// @Description Only the applying tutor, while the application is pending
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{id} [delete]
func (h *ApplicationHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c), roleFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
