package middleware

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yeisme/storyvault/pkg/configs"
)

// CORSMiddleware 浏览器端表单与管理后台携带 Bearer 令牌、关联 ID 与 ETag 调用 API.
func CORSMiddleware(cfg configs.ServerConfig) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins:  len(cfg.CORSOrigins) == 0,
		AllowOrigins:     cfg.CORSOrigins,
		AllowCredentials: len(cfg.CORSOrigins) > 0,
		AllowMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", CorrelationHeader, "If-None-Match"},
		ExposeHeaders: []string{CorrelationHeader, CacheStatusHeader, "ETag", "Retry-After"},
		MaxAge:        12 * time.Hour,
	})
}
