package service

import (
	"context"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/yeisme/storyvault/pkg/cache"
	ctxPkg "github.com/yeisme/storyvault/pkg/context"
	"github.com/yeisme/storyvault/pkg/internal/apperr"
	"github.com/yeisme/storyvault/pkg/internal/enrich"
	"github.com/yeisme/storyvault/pkg/internal/geo"
	"github.com/yeisme/storyvault/pkg/internal/lock"
	"github.com/yeisme/storyvault/pkg/internal/model"
	"github.com/yeisme/storyvault/pkg/internal/repo"
	"github.com/yeisme/storyvault/pkg/internal/tenant"
	"github.com/yeisme/storyvault/pkg/internal/types"
	nlog "github.com/yeisme/storyvault/pkg/log"
	"github.com/yeisme/storyvault/pkg/queue"
)

// FormDataService 表单记录的提交、修改、删除与查询.
type FormDataService struct {
	d   *Deps
	log zerolog.Logger
}

// NewFormDataService 从 context 获取依赖实例.
func NewFormDataService(ctx context.Context) *FormDataService {
	d := DepsFrom(ctx)

	// 依赖缺失属于启动错误，直接退出，调用方无需再判空
	if d == nil || d.Records == nil || d.Templates == nil {
		nlog.Logger().Fatal().Msg("service dependencies not initialized")
	}

	return &FormDataService{d: d, log: ctxPkg.Logger(ctx, "form_data")}
}

// Submit 校验模板与租户，写入记录，同步索引并投递富化任务.
// public 为 true 时记录归属模板所在租户，不校验调用方.
func (s *FormDataService) Submit(ctx context.Context, p tenant.Principal, templateID string, values model.Values,
	creationTime *time.Time, public bool,
) (string, error) {
	const op = "form_data.submit"

	tpl, err := s.d.Templates.Get(ctx, templateID)
	if err != nil {
		return "", err
	}

	if !public && !p.Owns(tpl.OrganizationID) {
		return "", apperr.Forbidden(op, "template belongs to another organization")
	}

	if err := checkFieldNames(op, tpl, values); err != nil {
		return "", err
	}

	created := s.d.now()
	if creationTime != nil {
		created = creationTime.UTC()
	}

	fd := &model.FormData{
		ID:             model.NewID(),
		TemplateID:     tpl.ID,
		OrganizationID: tpl.OrganizationID,
		Values:         values.Normalize(),
		CreationTime:   created,
		State:          model.StateActive,
		Tags:           model.StringList{},
		Themes:         model.StringList{},
	}

	if err := s.d.Records.Create(ctx, fd); err != nil {
		return "", err
	}

	l := s.log.With().Str("id", fd.ID).Str("template_id", fd.TemplateID).Str("org", fd.OrganizationID).Logger()

	if s.d.Index != nil {
		if err := s.d.Index.UpsertRecord(ctx, fd); err != nil {
			l.Warn().Err(err).Msg("index upsert failed, nightly reindex will repair")
		}
	}

	if s.d.Queue != nil {
		if err := queue.EnqueueEnrichment(ctx, s.d.Queue, fd.ID); err != nil {
			l.Warn().Err(err).Msg("enqueue enrichment failed, backfill will retry")
		}
	}

	s.invalidateZipcodes(ctx, fd.OrganizationID, fd.TemplateID)
	l.Info().Bool("public", public).Msg("form data submitted")

	return fd.ID, nil
}

// UpdateValues 覆盖字段值并整体重写索引文档.
func (s *FormDataService) UpdateValues(ctx context.Context, p tenant.Principal, id string, values model.Values) (*model.FormData, error) {
	fd, err := s.d.Records.GetActive(ctx, p.OrganizationID, id)
	if err != nil {
		return nil, err
	}

	fd.Values = values.Normalize()
	if err := s.d.Records.SaveValues(ctx, fd); err != nil {
		return nil, err
	}

	if s.d.Index != nil {
		if err := s.d.Index.UpsertRecord(ctx, fd); err != nil {
			s.log.Warn().Err(err).Str("id", id).Msg("index upsert failed")
		}
	}

	s.invalidateZipcodes(ctx, fd.OrganizationID, fd.TemplateID)

	return fd, nil
}

// SoftDelete 标记删除并移除索引文档.
func (s *FormDataService) SoftDelete(ctx context.Context, p tenant.Principal, id string) error {
	fd, err := s.d.Records.GetActive(ctx, p.OrganizationID, id)
	if err != nil {
		return err
	}

	if err := s.d.Records.MarkDeleted(ctx, id); err != nil {
		return err
	}

	if s.d.Index != nil {
		if err := s.d.Index.Delete(ctx, fd.TemplateID, id); err != nil {
			s.log.Warn().Err(err).Str("id", id).Msg("index delete failed")
		}
	}

	s.invalidateZipcodes(ctx, fd.OrganizationID, fd.TemplateID)
	s.log.Info().Str("id", id).Str("user", p.UserID).Msg("form data deleted")

	return nil
}

// Get 读取记录并附带富化状态.
func (s *FormDataService) Get(ctx context.Context, p tenant.Principal, id string) (*types.FormDataView, error) {
	fd, err := s.d.Records.GetActive(ctx, p.OrganizationID, id)
	if err != nil {
		return nil, err
	}

	locked := false

	if s.d.Locker != nil {
		if locked, err = s.d.Locker.IsLocked(ctx, lock.RecordKey(id)); err != nil {
			s.log.Warn().Err(err).Str("id", id).Msg("lock lookup failed")
		}
	}

	return &types.FormDataView{FormData: *fd, EnrichmentState: string(enrich.StateOf(fd, locked))}, nil
}

// List 分页列出租户模板下的记录.
func (s *FormDataService) List(ctx context.Context, p tenant.Principal, req types.ListFormDataRequest) (*types.ListFormDataResponse, error) {
	if _, err := s.ownedTemplate(ctx, p, req.TemplateID); err != nil {
		return nil, err
	}

	limit := s.d.limit(req.Limit)
	skip := max(req.Skip, 0)

	rows, total, err := s.d.Records.List(ctx, repo.ListQuery{
		OrganizationID: p.OrganizationID,
		TemplateID:     req.TemplateID,
		State:          req.Filters.State,
		Tag:            req.Filters.Tag,
		Ascending:      req.Sort == "creation_time",
		Skip:           skip,
		Limit:          limit,
	})
	if err != nil {
		return nil, err
	}

	resp := &types.ListFormDataResponse{FormData: rows, Count: total, Limit: limit}
	if end := skip + len(rows); int64(end) < total {
		resp.Next = &end
	}

	if resp.FormData == nil {
		resp.FormData = []model.FormData{}
	}

	return resp, nil
}

// Search 在模板索引中检索.
func (s *FormDataService) Search(ctx context.Context, p tenant.Principal, req types.SearchFormDataRequest) (*types.SearchFormDataResponse, error) {
	const op = "form_data.search"

	if _, err := s.ownedTemplate(ctx, p, req.TemplateID); err != nil {
		return nil, err
	}

	if s.d.Index == nil {
		return nil, apperr.E(apperr.KindInternal, op, "search index not configured")
	}

	res, err := s.d.Index.Search(ctx, req.TemplateID, req.Query, max(req.Skip, 0), s.d.limit(req.Limit))
	if err != nil {
		return nil, err
	}

	out := &types.SearchFormDataResponse{Hits: make([]types.SearchHit, 0, len(res.Hits)), Total: res.Total}
	for _, h := range res.Hits {
		out.Hits = append(out.Hits, types.SearchHit{ID: h.ID, Score: h.Score, Source: h.Source})
	}

	return out, nil
}

// Zipcodes 按邮编统计活跃记录，结果按租户与模板缓存.
func (s *FormDataService) Zipcodes(ctx context.Context, p tenant.Principal, templateID string) (*types.ZipcodesResponse, error) {
	if templateID != "" {
		if _, err := s.ownedTemplate(ctx, p, templateID); err != nil {
			return nil, err
		}
	}

	aggregate := func() (map[string]geo.ZipcodeStat, error) {
		counter := geo.NewCounter()

		err := s.d.Records.EachActive(ctx, p.OrganizationID, templateID, func(fd *model.FormData) {
			for _, f := range fd.Values {
				if sf, ok := f.(model.ScalarField); ok && sf.Type == model.FieldZipcode {
					counter.Add(model.Text(sf.Value))
				}
			}
		})
		if err != nil {
			return nil, err
		}

		return counter.Resolve(s.d.Geo), nil
	}

	var (
		stats map[string]geo.ZipcodeStat
		err   error
	)

	if s.d.Cache != nil {
		stats, err = cache.GetOrSet(ctx, s.d.Cache, zipcodesKey(p.OrganizationID, templateID), aggregate, s.d.GeoTTL)
	} else {
		stats, err = aggregate()
	}

	if err != nil {
		return nil, err
	}

	return &types.ZipcodesResponse{Zipcodes: stats}, nil
}

// GenerateMetadata 手动触发结构化元数据生成.
// 正在生成或距上次生成不足 enrichment.metadata_rate_limit_seconds 时返回 RateLimited.
func (s *FormDataService) GenerateMetadata(ctx context.Context, p tenant.Principal, id string) error {
	const op = "form_data.generate_metadata"

	fd, err := s.d.Records.GetActive(ctx, p.OrganizationID, id)
	if err != nil {
		return err
	}

	if s.d.Locker != nil {
		locked, err := s.d.Locker.IsLocked(ctx, lock.RecordKey(id))
		if err != nil {
			return apperr.Transient(op, err)
		}

		if locked {
			return apperr.RateLimited(op, "metadata generation already in progress")
		}
	}

	if md := fd.Metadata; md != nil && md.CreationTime != nil {
		if s.d.now().Sub(*md.CreationTime) < s.d.Enrichment.MetadataRateLimit() {
			return apperr.RateLimited(op, "metadata was generated recently")
		}
	}

	if s.d.Queue == nil {
		return apperr.E(apperr.KindInternal, op, "task queue not configured")
	}

	if err := s.d.Queue.Enqueue(ctx, queue.TaskStructuredMetadata, id); err != nil {
		return apperr.Transient(op, err)
	}

	s.log.Info().Str("id", id).Str("user", p.UserID).Msg("metadata generation requested")

	return nil
}

// ownedTemplate 读取模板，不属于调用方租户时返回 NotFound.
func (s *FormDataService) ownedTemplate(ctx context.Context, p tenant.Principal, templateID string) (*model.FormTemplate, error) {
	tpl, err := s.d.Templates.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}

	if !p.Owns(tpl.OrganizationID) {
		return nil, apperr.NotFound("template.get", "template "+templateID+" not found")
	}

	return tpl, nil
}

func (s *FormDataService) invalidateZipcodes(ctx context.Context, orgID, templateID string) {
	if s.d.Cache == nil {
		return
	}

	if err := s.d.Cache.Delete(ctx, zipcodesKey(orgID, templateID), zipcodesKey(orgID, "")); err != nil {
		s.log.Debug().Err(err).Str("org", orgID).Msg("zipcode cache invalidation failed")
	}
}

func zipcodesKey(orgID, templateID string) string {
	if templateID == "" {
		templateID = "all"
	}

	return "zipcodes:" + orgID + ":" + templateID
}

// checkFieldNames 模板声明了字段列表时，拒绝未声明的字段.
func checkFieldNames(op string, tpl *model.FormTemplate, values model.Values) error {
	if len(values) == 0 {
		return apperr.BadRequest(op, "values must not be empty")
	}

	if len(tpl.FieldNames) == 0 {
		return nil
	}

	for _, name := range values.Names() {
		if !slices.Contains(tpl.FieldNames, name) {
			return apperr.Errorf(apperr.KindBadRequest, op, "field %q is not defined by template %s", name, tpl.ID)
		}
	}

	return nil
}
