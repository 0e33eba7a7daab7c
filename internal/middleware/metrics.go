package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/routeflow/routeflow-api/internal/metrics"
)

// RequestMetrics records per-route latency and status into the registry.
func RequestMetrics(reg *metrics.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		reg.HTTPDuration.
			WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
