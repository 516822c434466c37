// Package types 定义 HTTP 层与服务层之间的请求、响应结构.
package types

import (
	"time"

	"github.com/yeisme/storyvault/pkg/internal/geo"
	"github.com/yeisme/storyvault/pkg/internal/model"
)

// SubmitFormDataRequest 提交表单.
type SubmitFormDataRequest struct {
	TemplateID   string       `json:"template_id"             rule:"required,ulid"`
	Values       model.Values `json:"values"                  rule:"required"`
	CreationTime *time.Time   `json:"creation_time,omitempty"`
}

// SubmitFormDataResponse 提交结果.
type SubmitFormDataResponse struct {
	ID string `json:"id"`
}

// UpdateFormDataRequest 覆盖记录的字段值.
type UpdateFormDataRequest struct {
	Values model.Values `json:"values" rule:"required"`
}

// ListFormDataRequest 列表查询，PUT /form-data/ 的请求体.
type ListFormDataRequest struct {
	TemplateID string `json:"template_id" rule:"required,ulid"`
	Skip       int    `json:"skip"        rule:"min=0"`
	Limit      int    `json:"limit"       rule:"min=0"`
	// Sort 取 creation_time 或 -creation_time，默认倒序.
	Sort    string      `json:"sort"        rule:"omitempty,oneof=creation_time -creation_time"`
	Filters ListFilters `json:"filters"`
}

// ListFilters 列表过滤条件.
type ListFilters struct {
	State model.State `json:"state" rule:"omitempty,oneof=ACTIVE DELETED"`
	Tag   string      `json:"tag"`
}

// ListFormDataResponse 分页结果，Next 为下一页的 skip，没有更多时为 nil.
type ListFormDataResponse struct {
	FormData []model.FormData `json:"form_data"`
	Count    int64            `json:"count"`
	Next     *int             `json:"next"`
	Limit    int              `json:"limit"`
}

// FormDataView 单条记录与派生的富化状态.
type FormDataView struct {
	model.FormData
	EnrichmentState string `json:"enrichment_state"`
}

// SearchFormDataRequest 全文检索参数.
type SearchFormDataRequest struct {
	TemplateID string `form:"template_id" rule:"required,ulid"`
	Query      string `form:"q"`
	Skip       int    `form:"skip"        rule:"min=0"`
	Limit      int    `form:"limit"       rule:"min=0"`
}

// SearchHit 单条命中.
type SearchHit struct {
	ID     string         `json:"id"`
	Score  float64        `json:"score"`
	Source map[string]any `json:"source"`
}

// SearchFormDataResponse 检索结果.
type SearchFormDataResponse struct {
	Hits  []SearchHit `json:"hits"`
	Total uint64      `json:"total"`
}

// ZipcodesRequest 邮编聚合参数，TemplateID 为空时聚合租户下全部模板.
type ZipcodesRequest struct {
	TemplateID string `form:"template_id"`
}

// ZipcodesResponse 邮编聚合结果.
type ZipcodesResponse struct {
	Zipcodes map[string]geo.ZipcodeStat `json:"zipcodes"`
}

// GenerateMetadataResponse 手动触发结构化元数据生成.
type GenerateMetadataResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
