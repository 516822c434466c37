package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/storyvault/pkg/internal/tenant"
)

// GetPrincipal 返回认证中间件写入的调用方，未认证时为匿名.
func GetPrincipal(c *gin.Context) tenant.Principal {
	if v, ok := c.Get("principal"); ok {
		if p, ok := v.(tenant.Principal); ok {
			return p
		}
	}

	p, _ := tenant.FromContext(c.Request.Context())

	return p
}

// RequireMinRole 要求最小角色. 匿名返回 401，角色不足返回 403.
func RequireMinRole(minRole tenant.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := GetPrincipal(c)
		if p.IsAnonymous() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		if p.Role < minRole {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden: insufficient role"})
			return
		}

		c.Next()
	}
}
