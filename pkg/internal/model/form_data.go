// Package model 定义文档存储中的表单模板与表单提交记录.
package model

import (
	crand "crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/oklog/ulid"
	"gorm.io/gorm"
)

// State 记录状态，只做软删除.
type State string

const (
	StateActive  State = "ACTIVE"
	StateDeleted State = "DELETED"
)

var (
	idMu      sync.Mutex
	idEntropy = ulid.Monotonic(crand.Reader, 0)
)

// NewID 生成 26 字符 ULID.
func NewID() string {
	idMu.Lock()
	defer idMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), idEntropy).String()
}

// FormData 表单提交记录.
type FormData struct {
	ID             string            `gorm:"primaryKey;size:26"                  json:"id"`
	TemplateID     string            `gorm:"size:26;index:idx_form_data_tpl"     json:"template_id"`
	OrganizationID string            `gorm:"size:64;index:idx_form_data_tpl"     json:"organization_id"`
	Values         Values            `gorm:"type:text"                           json:"values"`
	CreationTime   time.Time         `gorm:"index"                               json:"creation_time"`
	State          State             `gorm:"size:16;index;default:ACTIVE"        json:"state"`
	Tags           StringList        `gorm:"type:text"                           json:"tags"`
	Themes         StringList        `gorm:"type:text"                           json:"themes"`
	Metadata       *FormDataMetadata `gorm:"type:text"                           json:"metadata"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// TableName 固定表名.
func (FormData) TableName() string { return "form_data" }

// IsDeleted 是否已软删除.
func (f *FormData) IsDeleted() bool { return f.State == StateDeleted }

// IndexBody 返回写入搜索索引的文档：记录的全部规范字段，去掉 id.
func (f *FormData) IndexBody() (map[string]any, error) {
	b, err := sonic.Marshal(f)
	if err != nil {
		return nil, err
	}

	body := map[string]any{}
	if err := sonic.Unmarshal(b, &body); err != nil {
		return nil, err
	}

	delete(body, "id")
	delete(body, "_id")

	return body, nil
}

// FormTemplate 表单模板，记录所属的父实体.
type FormTemplate struct {
	ID             string     `gorm:"primaryKey;size:26"           json:"id"`
	OrganizationID string     `gorm:"size:64;index"                json:"organization_id"`
	Name           string     `gorm:"size:255"                     json:"name"`
	Description    string     `gorm:"type:text"                    json:"description"`
	FieldNames     StringList `gorm:"type:text"                    json:"field_names"`
	CreationTime   time.Time  `json:"creation_time"`
	State          State      `gorm:"size:16;index;default:ACTIVE" json:"state"`
}

// TableName 固定表名.
func (FormTemplate) TableName() string { return "form_templates" }

// AutoMigrate 创建或更新表结构.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&FormTemplate{}, &FormData{})
}

func trimItem(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "\"'`."))
}
