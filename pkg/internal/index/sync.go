package index

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/yeisme/storyvault/pkg/internal/model"
	nlog "github.com/yeisme/storyvault/pkg/log"
	"github.com/yeisme/storyvault/pkg/metrics"
)

// reindexPage Reindex 每页读取的记录数.
const reindexPage = 200

// RecordSource 按 id 升序分页读取模板下的全部记录（含已删除）.
type RecordSource interface {
	PageByTemplate(ctx context.Context, templateID, afterID string, limit int) ([]model.FormData, error)
}

// ReindexReport 一次重建的结果.
type ReindexReport struct {
	TemplateID string `json:"template_id"`
	Deleted    int    `json:"deleted"`
	Inserted   int    `json:"inserted"`
	InSync     int    `json:"in_sync"`
}

// Synchronizer 保持搜索索引与文档存储一致.
type Synchronizer struct {
	engine Engine
	source RecordSource
	known  sync.Map // 已确认存在的索引名，只增不减
	log    zerolog.Logger
}

// NewSynchronizer 创建同步器.
func NewSynchronizer(engine Engine, source RecordSource) *Synchronizer {
	return &Synchronizer{
		engine: engine,
		source: source,
		log:    nlog.Component("index"),
	}
}

// Name 返回模板对应的索引名.
func Name(templateID string) string {
	return "form-data-" + templateID
}

// EnsureIndex 确保模板索引存在.
func (s *Synchronizer) EnsureIndex(ctx context.Context, templateID string) error {
	name := Name(templateID)
	if _, ok := s.known.Load(name); ok {
		return nil
	}

	ok, err := s.engine.IndexExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check index %s: %w", name, err)
	}

	if !ok {
		s.log.Info().Str("index", name).Msg("creating search index")
	}

	if err := s.engine.EnsureIndex(ctx, name); err != nil {
		return err
	}

	s.known.Store(name, struct{}{})

	return nil
}

// Upsert 以记录 id 为键全量覆盖索引文档.
func (s *Synchronizer) Upsert(ctx context.Context, templateID, id string, body map[string]any) error {
	if err := s.EnsureIndex(ctx, templateID); err != nil {
		observe("upsert", err)
		return err
	}

	doc := make(map[string]any, len(body))
	for k, v := range body {
		if k == "id" || k == "_id" {
			continue
		}

		doc[k] = v
	}

	err := s.engine.Put(ctx, Name(templateID), id, doc)
	observe("upsert", err)

	return err
}

// UpsertRecord 写入记录的索引文档.
func (s *Synchronizer) UpsertRecord(ctx context.Context, fd *model.FormData) error {
	body, err := fd.IndexBody()
	if err != nil {
		return fmt.Errorf("build index body %s: %w", fd.ID, err)
	}

	return s.Upsert(ctx, fd.TemplateID, fd.ID, body)
}

// Delete 删除索引文档，索引或文档不存在都不视为错误.
func (s *Synchronizer) Delete(ctx context.Context, templateID, id string) error {
	err := s.engine.Delete(ctx, Name(templateID), id)
	if errors.Is(err, ErrIndexNotFound) {
		err = nil
	}

	observe("delete", err)

	return err
}

// Get 读取索引文档.
func (s *Synchronizer) Get(ctx context.Context, templateID, id string) (map[string]any, bool, error) {
	body, ok, err := s.engine.Get(ctx, Name(templateID), id)
	if errors.Is(err, ErrIndexNotFound) {
		return nil, false, nil
	}

	return body, ok, err
}

// Search 在模板索引中搜索，空查询返回全部文档.
func (s *Synchronizer) Search(ctx context.Context, templateID, q string, skip, limit int) (SearchResult, error) {
	if err := s.EnsureIndex(ctx, templateID); err != nil {
		return SearchResult{}, err
	}

	res, err := s.engine.Search(ctx, Name(templateID), q, skip, limit)
	observe("search", err)

	return res, err
}

// Reindex 遍历模板下的全部规范记录：删除已删除记录的索引文档，
// 补写缺失的活跃记录文档，已同步的文档保持不变.
func (s *Synchronizer) Reindex(ctx context.Context, templateID string) (ReindexReport, error) {
	report := ReindexReport{TemplateID: templateID}

	if err := s.EnsureIndex(ctx, templateID); err != nil {
		return report, err
	}

	after := ""

	for {
		page, err := s.source.PageByTemplate(ctx, templateID, after, reindexPage)
		if err != nil {
			return report, err
		}

		if len(page) == 0 {
			break
		}

		for i := range page {
			if err := s.reconcile(ctx, &page[i], &report); err != nil {
				return report, err
			}
		}

		after = page[len(page)-1].ID
	}

	s.log.Info().
		Str("template_id", templateID).
		Int("deleted", report.Deleted).
		Int("inserted", report.Inserted).
		Int("in_sync", report.InSync).
		Msg("reindex finished")

	return report, nil
}

func (s *Synchronizer) reconcile(ctx context.Context, fd *model.FormData, report *ReindexReport) error {
	_, present, err := s.Get(ctx, fd.TemplateID, fd.ID)
	if err != nil {
		return fmt.Errorf("read index doc %s: %w", fd.ID, err)
	}

	switch {
	case fd.IsDeleted() && present:
		if err := s.Delete(ctx, fd.TemplateID, fd.ID); err != nil {
			return err
		}

		report.Deleted++
	case fd.IsDeleted():
	case present:
		report.InSync++
	default:
		if err := s.UpsertRecord(ctx, fd); err != nil {
			return err
		}

		report.Inserted++
	}

	return nil
}

// Ping 确认引擎可用.
func (s *Synchronizer) Ping(ctx context.Context) error {
	_, err := s.engine.IndexExists(ctx, Name("ping"))
	return err
}

// Close 关闭底层引擎.
func (s *Synchronizer) Close() error {
	return s.engine.Close()
}

func observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}

	metrics.IndexOps.WithLabelValues(op, outcome).Inc()
}
