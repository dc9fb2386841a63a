package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/etution/etution-api/internal/models"
	appErrors "github.com/etution/etution-api/pkg/errors"
)

// Envelope is the body shape shared by every JSON endpoint. Exactly one
// of Data and Error is set.
type Envelope struct {
	Data       interface{}            `json:"data,omitempty"`
	Error      *appErrors.Error       `json:"error,omitempty"`
	Pagination *models.Pagination     `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

func write(c *gin.Context, status int, body Envelope) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(status, body)
}

// JSON sends a success envelope, optionally with pagination and meta.
func JSON(c *gin.Context, status int, data interface{}, pagination *models.Pagination, meta ...map[string]interface{}) {
	body := Envelope{Data: data, Pagination: pagination}
	if len(meta) > 0 {
		body.Meta = meta[0]
	}
	write(c, status, body)
}

// Created sends a 201 envelope for freshly persisted resources.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data, nil)
}

// Error maps err onto the envelope's error branch with its HTTP status.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	write(c, appErr.Status, Envelope{Error: appErr})
}

// NoContent responds 204 with an empty body.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
