package types

// CreateTemplateRequest 创建表单模板.
type CreateTemplateRequest struct {
	Name        string   `json:"name"        rule:"required,max=255"`
	Description string   `json:"description"`
	FieldNames  []string `json:"field_names" rule:"max=200,dive,fieldname"`
}

// CreateTemplateResponse 创建结果.
type CreateTemplateResponse struct {
	ID string `json:"id"`
}
