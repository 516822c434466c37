package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	ctxPkg "github.com/yeisme/storyvault/pkg/context"
)

// GinLoggerMiddleware 每个请求一行访问日志. 4xx 记 Warn，5xx 记 Error，
// 已认证调用方附带 org 与 user.
func GinLoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		l := ctxPkg.Logger(c.Request.Context(), "http")

		ev := l.WithLevel(accessLevel(status)).
			Str("method", c.Request.Method).
			Str("route", c.FullPath()).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP())

		if q := c.Request.URL.RawQuery; q != "" {
			ev = ev.Str("query", q)
		}

		if p := GetPrincipal(c); !p.IsAnonymous() {
			ev = ev.Str("org", p.OrganizationID).Str("user", p.UserID)
		}

		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			ev = ev.Strs("errors", errs.Errors())
		}

		ev.Msg("request")
	}
}

func accessLevel(status int) zerolog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zerolog.ErrorLevel
	case status >= http.StatusBadRequest:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}
