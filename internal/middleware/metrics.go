package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/etution/etution-api/internal/service"
)

// Metrics records per-request latency and status against the route
// template, so /tuitions/:id aggregates as one series. Passing a nil
// service disables collection.
func Metrics(metrics *service.MetricsService) gin.HandlerFunc {
	if metrics == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		metrics.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
