package middleware

import (
	"github.com/gin-gonic/gin"

	ctxPkg "github.com/yeisme/storyvault/pkg/context"
)

// CorrelationHeader 请求与响应中携带关联 ID 的头.
const CorrelationHeader = "X-Correlation-ID"

// CorrelationMiddleware 沿用请求头中的关联 ID，缺省时生成新的并回写响应头.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := ctxPkg.WithCorrelationID(c.Request.Context(), c.GetHeader(CorrelationHeader))
		c.Request = c.Request.WithContext(ctx)
		c.Header(CorrelationHeader, ctxPkg.CorrelationID(ctx))
		c.Next()
	}
}
