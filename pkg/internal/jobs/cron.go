// Package jobs 注册与实现后台定时任务（基于 scheduler）：富化回填与全量重建索引.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/yeisme/storyvault/pkg/configs"
	"github.com/yeisme/storyvault/pkg/internal/index"
	"github.com/yeisme/storyvault/pkg/internal/lock"
	"github.com/yeisme/storyvault/pkg/log"
	"github.com/yeisme/storyvault/pkg/queue"
	"github.com/yeisme/storyvault/pkg/scheduler"
)

// Candidates 查找需要回填的记录.
type Candidates interface {
	MissingTags(ctx context.Context, limit int) ([]string, error)
	StaleMetadata(ctx context.Context, limit int) ([]string, error)
}

// Enqueuer 投递富化任务.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind queue.TaskKind, recordID string) error
}

// Reindexer 重建全部模板索引.
type Reindexer interface {
	ReindexAll(ctx context.Context) ([]index.ReindexReport, error)
}

// Jobs 后台任务集合.
type Jobs struct {
	records   Candidates
	queue     Enqueuer
	reindexer Reindexer
	locker    *lock.Locker
	cfg       configs.EnrichmentConfig
	log       zerolog.Logger

	// sleep 两次入队之间的节流，测试中替换
	sleep func(ctx context.Context, d time.Duration) error
}

// New 创建任务集合. locker 可为空，此时不跳过处理中的记录.
func New(records Candidates, q Enqueuer, reindexer Reindexer, locker *lock.Locker, cfg configs.EnrichmentConfig) *Jobs {
	return &Jobs{
		records:   records,
		queue:     q,
		reindexer: reindexer,
		locker:    locker,
		cfg:       cfg,
		log:       log.Component("jobs"),
		sleep:     sleepCtx,
	}
}

// Register 按配置的 cron 表达式注册任务.
func (j *Jobs) Register(ctx context.Context, sched *scheduler.Scheduler) error {
	if sched == nil {
		return errors.New("scheduler is nil")
	}

	var errs []error

	if j.queue != nil && j.cfg.SweepCron != "" {
		errs = append(errs,
			sched.AddCron(ctx, JobTagBackfill, j.cfg.SweepCron, j.exclusive(JobTagBackfill, j.BackfillTags)),
			sched.AddCron(ctx, JobMetadataBackfill, j.cfg.SweepCron, j.exclusive(JobMetadataBackfill, j.BackfillMetadata)),
		)
	}

	if j.reindexer != nil && j.cfg.ReindexCron != "" {
		errs = append(errs, sched.AddCron(ctx, JobReindexAll, j.cfg.ReindexCron, j.exclusive(JobReindexAll, j.ReindexAll)))
	}

	return errors.Join(errs...)
}

// exclusive 多个副本同时触发时只有拿到 job 锁的一个真正运行.
func (j *Jobs) exclusive(name string, fn scheduler.Job) scheduler.Job {
	if j.locker == nil {
		return fn
	}

	return func(ctx context.Context) error {
		ran, err := j.locker.Do(ctx, lock.JobKey(name), j.cfg.JobLockTTL(), fn)
		if err == nil && !ran {
			j.log.Debug().Str("job", name).Msg("another replica holds the job lock")
		}

		return err
	}
}

// BackfillTags 为尚未打标签的记录补投标签/主题任务.
func (j *Jobs) BackfillTags(ctx context.Context) error {
	ids, err := j.records.MissingTags(ctx, j.cfg.BackfillBatch)
	if err != nil {
		return err
	}

	return j.enqueue(ctx, JobTagBackfill, queue.TaskTagTheme, ids)
}

// BackfillMetadata 为缺少或过期结构化元数据的记录补投元数据任务.
func (j *Jobs) BackfillMetadata(ctx context.Context) error {
	ids, err := j.records.StaleMetadata(ctx, j.cfg.BackfillBatch)
	if err != nil {
		return err
	}

	return j.enqueue(ctx, JobMetadataBackfill, queue.TaskStructuredMetadata, ids)
}

// ReindexAll 以文档存储为准重建全部模板索引.
func (j *Jobs) ReindexAll(ctx context.Context) error {
	reports, err := j.reindexer.ReindexAll(ctx)

	for _, r := range reports {
		j.log.Info().Str("template_id", r.TemplateID).
			Int("deleted", r.Deleted).Int("inserted", r.Inserted).Int("in_sync", r.InSync).
			Msg("template reindexed")
	}

	return err
}

func (j *Jobs) enqueue(ctx context.Context, job string, kind queue.TaskKind, ids []string) error {
	l := j.log.With().Str("job", job).Logger()
	sent := 0

	for i, id := range ids {
		if j.locked(ctx, id) {
			l.Debug().Str("record_id", id).Msg("record busy, skip")
			continue
		}

		if err := j.queue.Enqueue(ctx, kind, id); err != nil {
			return fmt.Errorf("enqueue %s for %s: %w", kind, id, err)
		}

		sent++

		if i < len(ids)-1 {
			if err := j.sleep(ctx, j.cfg.BackfillPace()); err != nil {
				return err
			}
		}
	}

	if sent > 0 {
		l.Info().Int("enqueued", sent).Int("candidates", len(ids)).Msg("backfill enqueued")
	}

	return nil
}

func (j *Jobs) locked(ctx context.Context, id string) bool {
	if j.locker == nil {
		return false
	}

	held, err := j.locker.IsLocked(ctx, lock.RecordKey(id))

	return err == nil && held
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
