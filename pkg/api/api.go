// Package api 组装 /api/v1 下的全部 HTTP 路由.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/storyvault/pkg/cache"
	"github.com/yeisme/storyvault/pkg/internal/router"
	"github.com/yeisme/storyvault/pkg/internal/tenant"
	"github.com/yeisme/storyvault/pkg/middleware"
)

// BasePath 业务接口前缀.
const BasePath = "/api/v1"

// RegisterGroup 在 /api/v1 下注册表单、模板、健康检查与调度器路由，返回该路由组.
func RegisterGroup(e *gin.Engine, c *cache.Cache) *gin.RouterGroup {
	v1 := e.Group(BasePath)

	router.RegisterHealthCheckRoute(v1)
	router.RegisterFormDataRoutes(v1)
	router.RegisterTemplateRoutes(v1, c)
	router.RegisterSchedulerRoutes(v1.Group("", middleware.RequireMinRole(tenant.RoleAdmin)))

	return v1
}
