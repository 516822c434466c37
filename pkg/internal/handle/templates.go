package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/storyvault/pkg/internal/service"
	"github.com/yeisme/storyvault/pkg/internal/types"
)

// CreateTemplate 创建表单模板.
//
//	@Summary	创建表单模板
//	@Tags		form-templates
//	@Accept		json
//	@Produce	json
//	@Param		body	body		types.CreateTemplateRequest	true	"template"
//	@Success	201		{object}	types.CreateTemplateResponse
//	@Router		/form-templates/ [post]
func CreateTemplate(c *gin.Context) {
	var req types.CreateTemplateRequest
	if !bindJSON(c, "template.create", &req) {
		return
	}

	ctx := c.Request.Context()

	tpl, err := service.NewTemplateService(ctx).Create(ctx, principal(c), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, types.CreateTemplateResponse{ID: tpl.ID})
}

// GetTemplate 读取模板.
//
//	@Summary	读取表单模板
//	@Tags		form-templates
//	@Produce	json
//	@Param		id	path		string	true	"template id"
//	@Success	200	{object}	model.FormTemplate
//	@Router		/form-templates/{id} [get]
func GetTemplate(c *gin.Context) {
	ctx := c.Request.Context()

	tpl, err := service.NewTemplateService(ctx).Get(ctx, principal(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, tpl)
}

// ReindexTemplate 以文档存储为准重建模板索引.
//
//	@Summary	重建模板索引
//	@Tags		form-templates
//	@Produce	json
//	@Param		id	path		string	true	"template id"
//	@Success	200	{object}	index.ReindexReport
//	@Router		/form-templates/{id}/reindex [post]
func ReindexTemplate(c *gin.Context) {
	ctx := c.Request.Context()

	report, err := service.NewTemplateService(ctx).Reindex(ctx, principal(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}
