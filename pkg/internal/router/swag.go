package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/yeisme/storyvault/docs"
	"github.com/yeisme/storyvault/pkg/configs"
)

// RegisterSwaggerRoute 仅在 debug 模式下暴露 /swagger/index.html.
func RegisterSwaggerRoute(r *gin.Engine) {
	cfg := configs.GetConfig().Server
	if !cfg.Debug {
		return
	}

	docs.SwaggerInfo.Host = cfg.Addr()
	docs.SwaggerInfo.Version = configs.AppVersion

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler,
		ginSwagger.DocExpansion("none"),
		ginSwagger.PersistAuthorization(true),
	))
}
