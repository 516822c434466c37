package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	ctxPkg "github.com/yeisme/storyvault/pkg/context"
)

// 这些路径不产生 span.
var untracedPrefixes = []string{"/metrics", "/_groupcache/", "/swagger/"}

// TracingMiddleware 为每个请求开启 server span，提取上游 traceparent，以路由模板命名.
func TracingMiddleware(service string) gin.HandlerFunc {
	return otelgin.Middleware(service, otelgin.WithGinFilter(traced))
}

func traced(c *gin.Context) bool {
	if strings.Contains(c.FullPath(), "/health") {
		return false
	}

	for _, p := range untracedPrefixes {
		if strings.HasPrefix(c.Request.URL.Path, p) {
			return false
		}
	}

	return true
}

// SpanAttributesMiddleware 给当前 server span 补充关联 ID 与租户.
// 须位于 TracingMiddleware 之后，租户属性在请求结束时才可用.
func SpanAttributesMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			c.Next()
			return
		}

		span.SetAttributes(attribute.String("correlation.id", ctxPkg.CorrelationID(c.Request.Context())))

		c.Next()

		if p := GetPrincipal(c); !p.IsAnonymous() {
			span.SetAttributes(
				attribute.String("tenant.org", p.OrganizationID),
				attribute.String("tenant.role", p.Role.String()),
			)
		}
	}
}
