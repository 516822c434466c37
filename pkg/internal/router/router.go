// Package router 将请求处理器绑定到 gin 路由组.
package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/storyvault/pkg/cache"
	"github.com/yeisme/storyvault/pkg/internal/handle"
	"github.com/yeisme/storyvault/pkg/internal/tenant"
	"github.com/yeisme/storyvault/pkg/middleware"
)

// RegisterFormDataRoutes 绑定表单记录路由（假定上层为 /api/v1）：
//
//	POST   /form-data/                        -> SubmitFormData
//	POST   /form-data/public                  -> SubmitPublicFormData（免认证）
//	PUT    /form-data/                        -> ListFormData
//	GET    /form-data/search                  -> SearchFormData
//	GET    /form-data/zipcodes                -> Zipcodes
//	GET    /form-data/:id                     -> GetFormData
//	PUT    /form-data/:id                     -> UpdateFormData
//	DELETE /form-data/:id                     -> DeleteFormData
//	POST   /form-data/:id/generate-metadata   -> GenerateMetadata
func RegisterFormDataRoutes(g *gin.RouterGroup) {
	fd := g.Group("/form-data")
	{
		fd.POST("/public", handle.SubmitPublicFormData)

		member := fd.Group("", middleware.RequireMinRole(tenant.RoleMember))
		member.POST("/", handle.SubmitFormData)
		member.PUT("/", handle.ListFormData)
		member.GET("/search", handle.SearchFormData)
		member.GET("/zipcodes", handle.Zipcodes)
		member.GET("/:id", handle.GetFormData)

		staff := fd.Group("", middleware.RequireMinRole(tenant.RoleStaff))
		staff.PUT("/:id", handle.UpdateFormData)
		staff.DELETE("/:id", handle.DeleteFormData)
		staff.POST("/:id/generate-metadata", handle.GenerateMetadata)
	}
}

// RegisterTemplateRoutes 绑定表单模板路由. 模板创建后不再修改，c 非空时按租户缓存读取结果.
func RegisterTemplateRoutes(g *gin.RouterGroup, c *cache.Cache) {
	read := []gin.HandlerFunc{middleware.RequireMinRole(tenant.RoleMember)}
	if c != nil {
		read = append(read, middleware.CacheMiddleware(templateCacheConfig(c)))
	}

	tpl := g.Group("/form-templates")
	{
		tpl.GET("/:id", append(read, handle.GetTemplate)...)
		tpl.POST("/", middleware.RequireMinRole(tenant.RoleStaff), handle.CreateTemplate)
		tpl.POST("/:id/reindex", middleware.RequireMinRole(tenant.RoleAdmin), handle.ReindexTemplate)
	}
}

func templateCacheConfig(c *cache.Cache) middleware.CacheConfig {
	cfg := middleware.DefaultCacheConfig(c)
	cfg.TTL = 5 * time.Minute
	cfg.KeyFunc = func(ctx *gin.Context) string {
		return "tpl:" + middleware.GetPrincipal(ctx).OrganizationID + ":" + ctx.Param("id")
	}

	return cfg
}
