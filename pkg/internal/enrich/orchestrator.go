// Package enrich 消费富化任务：为表单记录生成标签、主题与结构化元数据.
//
// 标签/主题任务不加锁，幂等且后写覆盖；结构化元数据任务在 record:{id} 锁内执行，
// 已有转写按 blob id 复用，只为新增的媒体引用调用转写.
package enrich

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	ctxutil "github.com/yeisme/storyvault/pkg/context"
	"github.com/yeisme/storyvault/pkg/internal/apperr"
	"github.com/yeisme/storyvault/pkg/internal/lock"
	"github.com/yeisme/storyvault/pkg/internal/model"
	"github.com/yeisme/storyvault/pkg/queue"
)

const (
	// NarrativeField 叙事字段名.
	NarrativeField = "patientStory"
	// MaxThemes 主题上限.
	MaxThemes = 5
)

// skipFields 不参与标签摘要的字段.
var skipFields = map[string]struct{}{
	"consentToTag": {},
	"image":        {},
	"consent":      {},
	"tags":         {},
}

// TextModel 文本模型.
type TextModel interface {
	Complete(ctx context.Context, system, user string) (string, error)
	GenerateJSON(ctx context.Context, system, user, name string, schema map[string]any) (map[string]any, error)
}

// Transcriber 媒体转写.
type Transcriber interface {
	Transcribe(ctx context.Context, kind model.FieldType, ref model.MediaRef) (string, error)
}

// Store 富化所需的文档存储操作.
type Store interface {
	Get(ctx context.Context, id string) (*model.FormData, error)
	SaveTagsThemes(ctx context.Context, id string, tags, themes model.StringList) error
	SaveMetadata(ctx context.Context, id string, md *model.FormDataMetadata) error
}

// Indexer 写回搜索索引，可为空.
type Indexer interface {
	UpsertRecord(ctx context.Context, fd *model.FormData) error
}

// Options 编排参数.
type Options struct {
	LockTTL                  time.Duration
	TranscriptionConcurrency int
	Now                      func() time.Time
}

// Orchestrator 执行两类富化任务.
type Orchestrator struct {
	store       Store
	text        TextModel
	transcriber Transcriber
	locker      *lock.Locker
	index       Indexer
	opts        Options
}

// New 创建编排器.
func New(store Store, text TextModel, transcriber Transcriber, locker *lock.Locker, index Indexer, opts Options) *Orchestrator {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}

	if opts.TranscriptionConcurrency <= 0 {
		opts.TranscriptionConcurrency = 1
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Orchestrator{
		store:       store,
		text:        text,
		transcriber: transcriber,
		locker:      locker,
		index:       index,
		opts:        opts,
	}
}

// Run 按任务类型分派.
func (o *Orchestrator) Run(ctx context.Context, kind queue.TaskKind, id string) error {
	switch kind {
	case queue.TaskTagTheme:
		return o.TagTheme(ctx, id)
	case queue.TaskStructuredMetadata:
		return o.StructuredMetadata(ctx, id)
	default:
		return apperr.Errorf(apperr.KindBadRequest, "enrich.run", "unknown task kind %q", kind)
	}
}

// load 读取记录，不存在或已删除时返回 nil.
func (o *Orchestrator) load(ctx context.Context, id string) (*model.FormData, error) {
	fd, err := o.store.Get(ctx, id)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	if fd.IsDeleted() {
		return nil, nil
	}

	return fd, nil
}

// TagTheme 生成标签，存在叙事字段时再生成主题.
func (o *Orchestrator) TagTheme(ctx context.Context, id string) error {
	log := ctxutil.Logger(ctx, "enrich").With().Str("record_id", id).Str("task", "tag_theme").Logger()

	fd, err := o.load(ctx, id)
	if err != nil || fd == nil {
		return err
	}

	digest := Digest(fd.Values)
	if digest == "" {
		log.Debug().Msg("no text to tag")
		return nil
	}

	raw, err := o.text.Complete(ctx, tagSystemPrompt, digest)
	if err != nil {
		return fmt.Errorf("generate tags: %w", err)
	}

	tags := model.NormalizeList(strings.Split(raw, ","), 0)
	themes := fd.Themes

	if story := narrative(fd.Values); story != "" {
		raw, err := o.text.Complete(ctx, themeSystemPrompt, story)
		if err != nil {
			return fmt.Errorf("generate themes: %w", err)
		}

		themes = model.NormalizeList(strings.Split(raw, ","), MaxThemes)
	}

	if err := o.store.SaveTagsThemes(ctx, id, tags, themes); err != nil {
		return err
	}

	o.reindex(ctx, log, id)

	log.Info().Strs("tags", tags).Strs("themes", themes).Msg("tags and themes written")

	return nil
}

// StructuredMetadata 在记录锁内转写缺失的媒体并抽取结构化元数据.
func (o *Orchestrator) StructuredMetadata(ctx context.Context, id string) error {
	log := ctxutil.Logger(ctx, "enrich").With().Str("record_id", id).Str("task", "structured_metadata").Logger()

	key := lock.RecordKey(id)

	ok, err := o.locker.Acquire(ctx, key, o.opts.LockTTL)
	if err != nil {
		return apperr.Transient("acquire record lock", err)
	}

	if !ok {
		log.Info().Msg("record locked by another worker, skipping")
		return nil
	}

	defer func() {
		// 解锁不受任务 ctx 取消影响
		if err := o.locker.Release(context.WithoutCancel(ctx), key); err != nil {
			log.Warn().Err(err).Msg("release record lock")
		}
	}()

	fd, err := o.load(ctx, id)
	if err != nil || fd == nil {
		return err
	}

	md := fd.Metadata.Retain(fd.Values)

	if err := o.transcribeMissing(ctx, fd.Values, md); err != nil {
		// 已完成的转写先落库，重投时不再重复
		if saveErr := o.store.SaveMetadata(ctx, id, withPrior(md, fd.Metadata)); saveErr != nil {
			log.Warn().Err(saveErr).Msg("save partial transcripts")
		}

		return err
	}

	obj, err := o.text.GenerateJSON(ctx, metadataSystemPrompt, metadataPrompt(fd.Values, md), metadataSchemaName, metadataSchema())
	if err == nil {
		obj, err = validateMetadata(obj)
	}

	if apperr.IsKind(err, apperr.KindCorrupt) {
		log.Error().Err(err).Msg("structured metadata rejected")
		return nil
	}

	if err != nil {
		return fmt.Errorf("generate structured metadata: %w", err)
	}

	now := o.opts.Now().UTC()
	md.StructuredData = obj
	md.CreationTime = &now

	if err := o.store.SaveMetadata(ctx, id, md); err != nil {
		return err
	}

	o.reindex(ctx, log, id)

	log.Info().Int("transcripts", len(md.AllTranscripts())).Msg("structured metadata written")

	return nil
}

// transcribeMissing 为尚无转写的媒体引用调用转写，结果写入 md.
func (o *Orchestrator) transcribeMissing(ctx context.Context, values model.Values, md *model.FormDataMetadata) error {
	var (
		mu sync.Mutex
		g  errgroup.Group
	)

	g.SetLimit(o.opts.TranscriptionConcurrency)

	seen := map[string]struct{}{}

	for _, item := range values.MediaItems() {
		if item.Type == model.FieldFile {
			continue
		}

		if _, ok := md.Lookup(item.Type, item.Ref.ID); ok {
			continue
		}

		key := string(item.Type) + "/" + item.Ref.ID
		if _, dup := seen[key]; dup {
			continue
		}

		seen[key] = struct{}{}

		g.Go(func() error {
			text, err := o.transcriber.Transcribe(ctx, item.Type, item.Ref)
			if err != nil {
				return err
			}

			mu.Lock()
			md.Put(item.Type, item.Ref.ID, text)
			mu.Unlock()

			return nil
		})
	}

	return g.Wait()
}

// reindex 写回前重新读取记录，模型调用期间的用户修改不会被旧快照覆盖.
func (o *Orchestrator) reindex(ctx context.Context, log zerolog.Logger, id string) {
	if o.index == nil {
		return
	}

	fd, err := o.load(ctx, id)
	if err != nil {
		log.Warn().Err(err).Msg("reload before index upsert failed, reindex will repair")
		return
	}

	if fd == nil {
		return
	}

	if err := o.index.UpsertRecord(ctx, fd); err != nil {
		log.Warn().Err(err).Msg("search index upsert failed, reindex will repair")
	}
}

// withPrior 保留旧的结构化结果，只更新转写缓存.
func withPrior(md, prior *model.FormDataMetadata) *model.FormDataMetadata {
	out := *md
	if prior != nil {
		out.StructuredData = prior.StructuredData
		out.CreationTime = prior.CreationTime
	}

	return &out
}

// Digest 将非媒体字段渲染为 "{label}: {value}, ..." 摘要.
func Digest(values model.Values) string {
	names := values.Names()
	parts := make([]string, 0, len(names))

	for _, name := range names {
		if _, skip := skipFields[name]; skip {
			continue
		}

		sf, ok := values[name].(model.ScalarField)
		if !ok {
			continue
		}

		text := model.Text(sf.Value)
		if text == "" || strings.EqualFold(text, "n/a") {
			continue
		}

		label := strings.TrimSpace(sf.Label)
		if label == "" {
			label = name
		}

		parts = append(parts, label+": "+text)
	}

	return strings.Join(parts, ", ")
}

func narrative(values model.Values) string {
	sf, ok := values[NarrativeField].(model.ScalarField)
	if !ok {
		return ""
	}

	return model.Text(sf.Value)
}

func metadataPrompt(values model.Values, md *model.FormDataMetadata) string {
	var b strings.Builder

	fields := values.TextFields()
	names := make([]string, 0, len(fields))

	for name := range fields {
		names = append(names, name)
	}

	sort.Strings(names)

	b.WriteString("Form answers:\n")

	for _, name := range names {
		fmt.Fprintf(&b, "%s: %s\n", name, fields[name])
	}

	if all := md.AllTranscripts(); len(all) > 0 {
		b.WriteString("\nMedia transcripts:\n")

		for _, t := range all {
			fmt.Fprintf(&b, "[%s] %s\n", t.BlobID, t.Transcript)
		}
	}

	return b.String()
}
