package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/etution/etution-api/internal/service"
)

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics *service.MetricsService
	db      *sqlx.DB
	cache   *redis.Client
}

// NewMetricsHandler constructs a metrics handler.
func NewMetricsHandler(metrics *service.MetricsService, db *sqlx.DB, cache *redis.Client) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, db: db, cache: cache}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health responds with a generic OK payload for liveness usage.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready checks the backing stores. Redis being down does not fail readiness:
// the role resolver degrades to direct lookups without it.
func (h *MetricsHandler) Ready(c *gin.Context) {
	ctx := c.Request.Context()

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
	}

	cacheStatus := "ok"
	if h.cache != nil {
		if err := h.cache.Ping(ctx).Err(); err != nil {
			cacheStatus = "unavailable"
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "cache": cacheStatus})
}
