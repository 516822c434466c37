package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/storyvault/pkg/metrics"
)

// routeLabel 路由模板作为标签，路径参数不进入指标.
func routeLabel(c *gin.Context) string {
	if r := c.FullPath(); r != "" {
		return r
	}

	return "unmatched"
}

// PrometheusMiddleware 记录请求数、延迟、响应大小与并发数.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics.InFlight.Inc()
		defer metrics.InFlight.Dec()

		start := time.Now()

		c.Next()

		route := routeLabel(c)
		method := c.Request.Method

		metrics.RequestCounter.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.RequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())

		if n := c.Writer.Size(); n > 0 {
			metrics.ResponseSize.WithLabelValues(route).Observe(float64(n))
		}
	}
}
