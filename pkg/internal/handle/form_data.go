package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/storyvault/pkg/internal/service"
	"github.com/yeisme/storyvault/pkg/internal/tenant"
	"github.com/yeisme/storyvault/pkg/internal/types"
)

// SubmitFormData 提交表单，记录归属调用方租户.
//
//	@Summary	提交表单
//	@Tags		form-data
//	@Accept		json
//	@Produce	json
//	@Param		body	body		types.SubmitFormDataRequest	true	"submission"
//	@Success	201		{object}	types.SubmitFormDataResponse
//	@Router		/form-data/ [post]
func SubmitFormData(c *gin.Context) {
	submit(c, principal(c), false)
}

// SubmitPublicFormData 匿名提交，记录归属模板所在租户.
//
//	@Summary	公开提交表单
//	@Tags		form-data
//	@Accept		json
//	@Produce	json
//	@Param		body	body		types.SubmitFormDataRequest	true	"submission"
//	@Success	201		{object}	types.SubmitFormDataResponse
//	@Router		/form-data/public [post]
func SubmitPublicFormData(c *gin.Context) {
	submit(c, tenant.Anonymous, true)
}

func submit(c *gin.Context, p tenant.Principal, public bool) {
	var req types.SubmitFormDataRequest
	if !bindJSON(c, "form_data.submit", &req) {
		return
	}

	ctx := c.Request.Context()

	id, err := service.NewFormDataService(ctx).Submit(ctx, p, req.TemplateID, req.Values, req.CreationTime, public)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, types.SubmitFormDataResponse{ID: id})
}

// ListFormData 分页列出模板下的记录.
//
//	@Summary	列出表单记录
//	@Tags		form-data
//	@Accept		json
//	@Produce	json
//	@Param		body	body		types.ListFormDataRequest	true	"query"
//	@Success	200		{object}	types.ListFormDataResponse
//	@Router		/form-data/ [put]
func ListFormData(c *gin.Context) {
	var req types.ListFormDataRequest
	if !bindJSON(c, "form_data.list", &req) {
		return
	}

	ctx := c.Request.Context()

	res, err := service.NewFormDataService(ctx).List(ctx, principal(c), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// SearchFormData 全文检索.
//
//	@Summary	检索表单记录
//	@Tags		form-data
//	@Produce	json
//	@Param		template_id	query		string	true	"template id"
//	@Param		q			query		string	false	"query string"
//	@Success	200			{object}	types.SearchFormDataResponse
//	@Router		/form-data/search [get]
func SearchFormData(c *gin.Context) {
	var req types.SearchFormDataRequest
	if !bindQuery(c, "form_data.search", &req) {
		return
	}

	ctx := c.Request.Context()

	res, err := service.NewFormDataService(ctx).Search(ctx, principal(c), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// Zipcodes 按邮编聚合.
//
//	@Summary	邮编聚合
//	@Tags		form-data
//	@Produce	json
//	@Param		template_id	query		string	false	"template id"
//	@Success	200			{object}	types.ZipcodesResponse
//	@Router		/form-data/zipcodes [get]
func Zipcodes(c *gin.Context) {
	var req types.ZipcodesRequest
	if !bindQuery(c, "form_data.zipcodes", &req) {
		return
	}

	ctx := c.Request.Context()

	res, err := service.NewFormDataService(ctx).Zipcodes(ctx, principal(c), req.TemplateID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// GetFormData 读取单条记录.
//
//	@Summary	读取表单记录
//	@Tags		form-data
//	@Produce	json
//	@Param		id	path		string	true	"record id"
//	@Success	200	{object}	types.FormDataView
//	@Router		/form-data/{id} [get]
func GetFormData(c *gin.Context) {
	ctx := c.Request.Context()

	view, err := service.NewFormDataService(ctx).Get(ctx, principal(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// UpdateFormData 覆盖记录字段值.
//
//	@Summary	修改表单记录
//	@Tags		form-data
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string						true	"record id"
//	@Param		body	body		types.UpdateFormDataRequest	true	"values"
//	@Success	200		{object}	model.FormData
//	@Router		/form-data/{id} [put]
func UpdateFormData(c *gin.Context) {
	var req types.UpdateFormDataRequest
	if !bindJSON(c, "form_data.update", &req) {
		return
	}

	ctx := c.Request.Context()

	fd, err := service.NewFormDataService(ctx).UpdateValues(ctx, principal(c), c.Param("id"), req.Values)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, fd)
}

// DeleteFormData 软删除.
//
//	@Summary	删除表单记录
//	@Tags		form-data
//	@Param		id	path	string	true	"record id"
//	@Success	204
//	@Router		/form-data/{id} [delete]
func DeleteFormData(c *gin.Context) {
	ctx := c.Request.Context()

	if err := service.NewFormDataService(ctx).SoftDelete(ctx, principal(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GenerateMetadata 手动触发结构化元数据生成.
//
//	@Summary	生成结构化元数据
//	@Tags		form-data
//	@Produce	json
//	@Param		id	path		string	true	"record id"
//	@Success	202	{object}	types.GenerateMetadataResponse
//	@Failure	429	{object}	map[string]string
//	@Router		/form-data/{id}/generate-metadata [post]
func GenerateMetadata(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if err := service.NewFormDataService(ctx).GenerateMetadata(ctx, principal(c), id); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, types.GenerateMetadataResponse{ID: id, Status: "queued"})
}
