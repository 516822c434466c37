// Package handle 提供 HTTP 请求处理器，只负责绑定参数、调用服务与映射错误.
package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	ctxPkg "github.com/yeisme/storyvault/pkg/context"
	"github.com/yeisme/storyvault/pkg/internal/apperr"
	"github.com/yeisme/storyvault/pkg/internal/tenant"
	"github.com/yeisme/storyvault/pkg/rule"
)

// principal 返回认证中间件注入的调用方，未认证时为匿名.
func principal(c *gin.Context) tenant.Principal {
	p, _ := tenant.FromContext(c.Request.Context())
	return p
}

// bindJSON 解析并校验请求体，失败时已写出 400.
func bindJSON(c *gin.Context, op string, req any) bool {
	return bind(c, op, req, c.ShouldBindJSON)
}

// bindQuery 解析并校验查询参数，失败时已写出 400.
func bindQuery(c *gin.Context, op string, req any) bool {
	return bind(c, op, req, c.ShouldBindQuery)
}

func bind(c *gin.Context, op string, req any, decode func(any) error) bool {
	err := decode(req)
	if err == nil {
		err = rule.ValidateStruct(req)
	}

	if err == nil {
		return true
	}

	// 校验错误转为按字段名组织的信息
	if verrs := rule.Errors(err); verrs != nil {
		err = verrs
	}

	writeError(c, apperr.Wrap(apperr.KindBadRequest, op, err))

	return false
}

// writeError 按错误类别写出响应. 5xx 只返回关联 ID，细节仅写入日志.
func writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	l := ctxPkg.Logger(c.Request.Context(), "http")

	if status >= http.StatusInternalServerError {
		id := ctxPkg.CorrelationID(c.Request.Context())
		if id == "" {
			id = uuid.NewString()
		}

		l.Error().Err(err).Str("kind", kind.String()).Str("correlation_id", id).
			Str("path", c.FullPath()).Msg("request failed")
		c.JSON(status, gin.H{"error": http.StatusText(status), "correlation_id": id})

		return
	}

	l.Warn().Err(err).Str("kind", kind.String()).Str("path", c.FullPath()).Msg("request rejected")
	c.JSON(status, gin.H{"error": err.Error()})
}
