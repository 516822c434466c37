// Package repo 封装表单模板与表单记录在文档存储中的读写.
package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/gorm"

	"github.com/yeisme/storyvault/pkg/internal/apperr"
	"github.com/yeisme/storyvault/pkg/internal/model"
)

// DefaultPageSize 分页查询的默认大小.
const DefaultPageSize = 100

// FormData 表单记录仓库.
type FormData struct {
	db *gorm.DB
}

// NewFormData 创建表单记录仓库.
func NewFormData(db *gorm.DB) *FormData { return &FormData{db: db} }

// Get 按 id 读取记录，不区分租户与状态.
func (r *FormData) Get(ctx context.Context, id string) (*model.FormData, error) {
	var fd model.FormData

	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&fd).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("form_data.get", "form data "+id+" not found")
	}

	if err != nil {
		return nil, fmt.Errorf("load form data %s: %w", id, err)
	}

	return &fd, nil
}

// GetActive 读取租户内未删除的记录，其余情况一律 NotFound.
func (r *FormData) GetActive(ctx context.Context, orgID, id string) (*model.FormData, error) {
	fd, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if fd.OrganizationID != orgID || fd.IsDeleted() {
		return nil, apperr.NotFound("form_data.get", "form data "+id+" not found")
	}

	return fd, nil
}

// Create 写入新记录.
func (r *FormData) Create(ctx context.Context, fd *model.FormData) error {
	if err := r.db.WithContext(ctx).Create(fd).Error; err != nil {
		return fmt.Errorf("create form data: %w", err)
	}

	return nil
}

// SaveValues 覆盖字段值并刷新 updated_at.
func (r *FormData) SaveValues(ctx context.Context, fd *model.FormData) error {
	fd.UpdatedAt = time.Now().UTC()

	err := r.db.WithContext(ctx).Model(&model.FormData{}).Where("id = ?", fd.ID).
		UpdateColumns(map[string]any{"values": fd.Values, "updated_at": fd.UpdatedAt}).Error
	if err != nil {
		return fmt.Errorf("update form data %s: %w", fd.ID, err)
	}

	return nil
}

// SaveTagsThemes 只写 tags 与 themes 两列，不改变 updated_at.
func (r *FormData) SaveTagsThemes(ctx context.Context, id string, tags, themes model.StringList) error {
	if tags == nil {
		tags = model.StringList{}
	}

	if themes == nil {
		themes = model.StringList{}
	}

	err := r.db.WithContext(ctx).Model(&model.FormData{}).Where("id = ?", id).
		UpdateColumns(map[string]any{"tags": tags, "themes": themes}).Error
	if err != nil {
		return fmt.Errorf("update tags of %s: %w", id, err)
	}

	return nil
}

// SaveMetadata 只写 metadata 列.
func (r *FormData) SaveMetadata(ctx context.Context, id string, md *model.FormDataMetadata) error {
	err := r.db.WithContext(ctx).Model(&model.FormData{}).Where("id = ?", id).
		UpdateColumn("metadata", md).Error
	if err != nil {
		return fmt.Errorf("update metadata of %s: %w", id, err)
	}

	return nil
}

// MarkDeleted 软删除.
func (r *FormData) MarkDeleted(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Model(&model.FormData{}).Where("id = ?", id).
		UpdateColumns(map[string]any{"state": model.StateDeleted, "updated_at": time.Now().UTC()}).Error
	if err != nil {
		return fmt.Errorf("delete form data %s: %w", id, err)
	}

	return nil
}

// PageByTemplate 按 id 升序分页读取模板下全部记录（含已删除）.
func (r *FormData) PageByTemplate(ctx context.Context, templateID, afterID string, limit int) ([]model.FormData, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}

	q := r.db.WithContext(ctx).Where("template_id = ?", templateID)
	if afterID != "" {
		q = q.Where("id > ?", afterID)
	}

	var rows []model.FormData
	if err := q.Order("id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("page form data of %s: %w", templateID, err)
	}

	return rows, nil
}

// ListQuery 列表查询条件.
type ListQuery struct {
	OrganizationID string
	TemplateID     string
	State          model.State
	Tag            string
	Ascending      bool
	Skip           int
	Limit          int
}

// List 返回一页记录与总数.
func (r *FormData) List(ctx context.Context, q ListQuery) ([]model.FormData, int64, error) {
	state := q.State
	if state == "" {
		state = model.StateActive
	}

	dbx := r.db.WithContext(ctx).Model(&model.FormData{}).
		Where("organization_id = ? AND template_id = ? AND state = ?", q.OrganizationID, q.TemplateID, state)

	if q.Tag != "" {
		pattern, err := tagPattern(q.Tag)
		if err != nil {
			return nil, 0, apperr.Wrap(apperr.KindBadRequest, "repo.list", err)
		}

		dbx = dbx.Where("tags LIKE ? ESCAPE '!'", pattern)
	}

	var total int64
	if err := dbx.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count form data: %w", err)
	}

	order := "creation_time DESC"
	if q.Ascending {
		order = "creation_time ASC"
	}

	var rows []model.FormData
	if err := dbx.Order(order).Offset(q.Skip).Limit(q.Limit).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("list form data: %w", err)
	}

	return rows, total, nil
}

// MissingTags 返回尚未打标签的活跃记录 id.
func (r *FormData) MissingTags(ctx context.Context, limit int) ([]string, error) {
	var ids []string

	err := r.db.WithContext(ctx).Model(&model.FormData{}).
		Where("state = ?", model.StateActive).
		Where("tags IS NULL OR tags = '' OR tags = '[]' OR tags = 'null'").
		Order("creation_time ASC").Limit(limit).Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("find untagged form data: %w", err)
	}

	return ids, nil
}

// StaleMetadata 返回缺少结构化元数据或元数据早于最近一次更新的活跃记录 id.
func (r *FormData) StaleMetadata(ctx context.Context, limit int) ([]string, error) {
	var (
		ids  []string
		rows []model.FormData
	)

	err := r.db.WithContext(ctx).Where("state = ?", model.StateActive).Order("creation_time ASC").
		FindInBatches(&rows, DefaultPageSize, func(_ *gorm.DB, _ int) error {
			for i := range rows {
				if metadataStale(&rows[i]) {
					ids = append(ids, rows[i].ID)
				}

				if len(ids) >= limit {
					return errStopBatches
				}
			}

			return nil
		}).Error
	if err != nil && !errors.Is(err, errStopBatches) {
		return nil, fmt.Errorf("find stale metadata: %w", err)
	}

	return ids, nil
}

var errStopBatches = errors.New("stop")

func metadataStale(fd *model.FormData) bool {
	if fd.Metadata == nil || fd.Metadata.CreationTime == nil {
		return true
	}

	return fd.Metadata.CreationTime.Before(fd.UpdatedAt)
}

// EachActive 遍历租户模板下的全部活跃记录.
func (r *FormData) EachActive(ctx context.Context, orgID, templateID string, fn func(*model.FormData)) error {
	var rows []model.FormData

	q := r.db.WithContext(ctx).Where("organization_id = ? AND state = ?", orgID, model.StateActive)
	if templateID != "" {
		q = q.Where("template_id = ?", templateID)
	}

	return q.FindInBatches(&rows, DefaultPageSize, func(_ *gorm.DB, _ int) error {
		for i := range rows {
			fn(&rows[i])
		}

		return nil
	}).Error
}

// Templates 表单模板仓库.
type Templates struct {
	db *gorm.DB
}

// NewTemplates 创建模板仓库.
func NewTemplates(db *gorm.DB) *Templates { return &Templates{db: db} }

// Create 写入模板.
func (r *Templates) Create(ctx context.Context, t *model.FormTemplate) error {
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("create template: %w", err)
	}

	return nil
}

// Get 读取未删除的模板.
func (r *Templates) Get(ctx context.Context, id string) (*model.FormTemplate, error) {
	var t model.FormTemplate

	err := r.db.WithContext(ctx).Where("id = ? AND state = ?", id, model.StateActive).Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("template.get", "template "+id+" not found")
	}

	if err != nil {
		return nil, fmt.Errorf("load template %s: %w", id, err)
	}

	return &t, nil
}

// IDs 返回全部未删除模板的 id.
func (r *Templates) IDs(ctx context.Context) ([]string, error) {
	var ids []string

	err := r.db.WithContext(ctx).Model(&model.FormTemplate{}).
		Where("state = ?", model.StateActive).Order("id ASC").Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	return ids, nil
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// tagPattern tags 以 JSON 数组文本存储，按编码后的完整元素匹配，通配符按字面处理.
func tagPattern(tag string) (string, error) {
	quoted, err := sonic.ConfigStd.MarshalToString(tag)
	if err != nil {
		return "", err
	}

	return "%" + likeEscaper.Replace(quoted) + "%", nil
}
