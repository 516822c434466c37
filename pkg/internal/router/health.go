package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/storyvault/pkg/internal/handle"
)

// RegisterHealthCheckRoute 注册健康检查路由:
//
//	GET /health             -> 全部后端
//	GET /health/:component  -> db | s3 | mq | kv | index
func RegisterHealthCheckRoute(g *gin.RouterGroup) {
	g.GET("/health", handle.Health)
	g.GET("/health/:component", handle.HealthComponent)
}
