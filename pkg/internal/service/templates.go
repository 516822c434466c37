package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	ctxPkg "github.com/yeisme/storyvault/pkg/context"
	"github.com/yeisme/storyvault/pkg/internal/apperr"
	"github.com/yeisme/storyvault/pkg/internal/index"
	"github.com/yeisme/storyvault/pkg/internal/model"
	"github.com/yeisme/storyvault/pkg/internal/tenant"
	"github.com/yeisme/storyvault/pkg/internal/types"
	nlog "github.com/yeisme/storyvault/pkg/log"
	"github.com/yeisme/storyvault/pkg/rule"
)

// TemplateService 表单模板与模板索引维护.
type TemplateService struct {
	d   *Deps
	log zerolog.Logger
}

// NewTemplateService 从 context 获取依赖实例.
func NewTemplateService(ctx context.Context) *TemplateService {
	d := DepsFrom(ctx)
	if d == nil || d.Templates == nil {
		nlog.Logger().Fatal().Msg("service dependencies not initialized")
	}

	return &TemplateService{d: d, log: ctxPkg.Logger(ctx, "template")}
}

// Create 在调用方租户下创建模板并建立索引.
func (s *TemplateService) Create(ctx context.Context, p tenant.Principal, req types.CreateTemplateRequest) (*model.FormTemplate, error) {
	const op = "template.create"

	if p.IsAnonymous() {
		return nil, apperr.Forbidden(op, "anonymous callers cannot create templates")
	}

	if err := rule.ValidateStruct(req); err != nil {
		return nil, apperr.Wrap(apperr.KindBadRequest, op, err)
	}

	names := make([]string, 0, len(req.FieldNames))
	for _, n := range req.FieldNames {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}

	tpl := &model.FormTemplate{
		ID:             model.NewID(),
		OrganizationID: p.OrganizationID,
		Name:           strings.TrimSpace(req.Name),
		Description:    req.Description,
		FieldNames:     model.NormalizeList(names, 0),
		CreationTime:   s.d.now(),
		State:          model.StateActive,
	}

	if err := s.d.Templates.Create(ctx, tpl); err != nil {
		return nil, err
	}

	if s.d.Index != nil {
		if err := s.d.Index.EnsureIndex(ctx, tpl.ID); err != nil {
			s.log.Warn().Err(err).Str("template_id", tpl.ID).Msg("create index failed")
		}
	}

	s.log.Info().Str("template_id", tpl.ID).Str("org", tpl.OrganizationID).Msg("template created")

	return tpl, nil
}

// Get 读取调用方租户的模板.
func (s *TemplateService) Get(ctx context.Context, p tenant.Principal, id string) (*model.FormTemplate, error) {
	tpl, err := s.d.Templates.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !p.Owns(tpl.OrganizationID) {
		return nil, apperr.NotFound("template.get", "template "+id+" not found")
	}

	return tpl, nil
}

// Reindex 以文档存储为准重建模板索引.
func (s *TemplateService) Reindex(ctx context.Context, p tenant.Principal, id string) (*index.ReindexReport, error) {
	if _, err := s.Get(ctx, p, id); err != nil {
		return nil, err
	}

	return s.ReindexTemplate(ctx, id)
}

// ReindexAll 重建全部模板索引，供定时任务与命令行使用；单个模板失败不影响其余模板.
func (s *TemplateService) ReindexAll(ctx context.Context) ([]index.ReindexReport, error) {
	ids, err := s.d.Templates.IDs(ctx)
	if err != nil {
		return nil, err
	}

	reports := make([]index.ReindexReport, 0, len(ids))

	var errs []error

	for _, id := range ids {
		r, err := s.ReindexTemplate(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		reports = append(reports, *r)
	}

	return reports, errors.Join(errs...)
}

// ReindexTemplate 按模板 id 重建索引，不做租户校验，供后台任务使用.
func (s *TemplateService) ReindexTemplate(ctx context.Context, id string) (*index.ReindexReport, error) {
	if s.d.Index == nil {
		return nil, apperr.E(apperr.KindInternal, "template.reindex", "search index not configured")
	}

	report, err := s.d.Index.Reindex(ctx, id)
	if err != nil {
		return nil, err
	}

	return &report, nil
}
