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

// PaymentHandler wires HTTP endpoints to the payment service.
type PaymentHandler struct {
	service *service.PaymentService
}

// NewPaymentHandler creates a new handler.
func NewPaymentHandler(svc *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{service: svc}
}

// Checkout godoc
// @Summary Start a hosted checkout
// @Description Opens a checkout session for a pending application
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body models.CheckoutRequest true "Checkout payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /payments/checkout [post]
func (h *PaymentHandler) Checkout(c *gin.Context) {
	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid checkout payload"))
		return
	}

	res, err := h.service.Checkout(c.Request.Context(), req, claimsFromContext(c), roleFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Confirm godoc
// @Summary Confirm a completed checkout
// @Description Exchanges the returned session for a payment record and
// @Description approves the application. Replays report already_completed.
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body object true "Session reference"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /payments/success [patch]
func (h *PaymentHandler) Confirm(c *gin.Context) {
	var payload struct {
		SessionID string `json:"session_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "session_id is required"))
		return
	}

	res, err := h.service.Confirm(c.Request.Context(), payload.SessionID, claimsFromContext(c), roleFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// List godoc
// @Summary List payments
// @Description Students see payments they made, tutors payments they received
// @Tags Payments
// @Produce json
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /payments [get]
func (h *PaymentHandler) List(c *gin.Context) {
	filter := models.PaymentFilter{}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	payments, pagination, err := h.service.List(c.Request.Context(), filter, claimsFromContext(c), roleFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payments, pagination)
}

// Receipt godoc
// @Summary Download a payment receipt
// @Description PDF receipt, visible to payer, payee, and admins
// @Tags Payments
// @Produce application/pdf
// @Param id path string true "Payment ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /payments/{id}/receipt [get]
func (h *PaymentHandler) Receipt(c *gin.Context) {
	out, err := h.service.Receipt(c.Request.Context(), c.Param("id"), claimsFromContext(c), roleFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="receipt.pdf"`)
	c.Data(http.StatusOK, "application/pdf", out)
}

// Report godoc
// @Summary Export the payments report
// @Description Admin-wide CSV export of all payments
// @Tags Payments
// @Produce text/csv
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /admin/reports/payments [get]
func (h *PaymentHandler) Report(c *gin.Context) {
	out, err := h.service.Report(c.Request.Context(), roleFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="payments.csv"`)
	c.Data(http.StatusOK, "text/csv", out)
}
