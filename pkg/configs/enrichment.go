package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultEnrichmentLockTTL        = 600  // record:{id} 锁有效期（秒）
	DefaultMailboxLockTTL           = 3600 // mailbox:{id} 锁有效期（秒）
	DefaultJobLockTTL               = 3600 // job:{name} 锁有效期（秒），覆盖一次全量重建
	DefaultMetadataRateLimit        = 300  // 手动生成元数据的最小间隔（秒）
	DefaultBackfillPace             = 10   // 回填任务两次入队之间的间隔（秒）
	DefaultMaxRedeliveries          = 5    // 进入死信前的最大处理失败次数
	DefaultHandlerTimeout           = 540  // 单个任务处理超时（秒），小于锁有效期
	DefaultBackfillBatch            = 50   // 每轮回填最多入队的记录数
	DefaultTagThemeQueue            = "FORM_DATA_TAG_THEME"
	DefaultStructuredMetadataQueue  = "FORM_DATA_METADATA_GENERATION"
	DefaultSweepCron                = "*/30 * * * *"
	DefaultReindexCron              = "0 3 * * *"
	DefaultTranscriptionConcurrency = 2
)

// EnrichmentConfig 富化流程配置.
type EnrichmentConfig struct {
	LockTTLSeconds           int          `mapstructure:"lock_ttl_seconds"            rule:"min=1"`
	MailboxLockTTLSeconds    int          `mapstructure:"mailbox_lock_ttl_seconds"    rule:"min=1"`
	JobLockTTLSeconds        int          `mapstructure:"job_lock_ttl_seconds"        rule:"min=1"`
	MetadataRateLimitSeconds int          `mapstructure:"metadata_rate_limit_seconds" rule:"min=0"`
	BackfillPaceSeconds      int          `mapstructure:"backfill_pace_seconds"       rule:"min=0"`
	BackfillBatch            int          `mapstructure:"backfill_batch"              rule:"min=1"`
	MaxRedeliveries          int          `mapstructure:"max_redeliveries"            rule:"min=0"`
	HandlerTimeoutSeconds    int          `mapstructure:"handler_timeout_seconds"     rule:"min=1"`
	TranscriptionConcurrency int          `mapstructure:"transcription_concurrency"   rule:"min=1"`
	SweepCron                string       `mapstructure:"sweep_cron"`
	ReindexCron              string       `mapstructure:"reindex_cron"`
	Queues                   QueuesConfig `mapstructure:"queues"`
}

// QueuesConfig 任务队列名称.
type QueuesConfig struct {
	TagTheme           string `mapstructure:"tag_theme"           rule:"required"`
	StructuredMetadata string `mapstructure:"structured_metadata" rule:"required"`
}

// LockTTL 返回记录锁有效期.
func (c *EnrichmentConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// MailboxLockTTL 返回邮箱轮询锁有效期.
func (c *EnrichmentConfig) MailboxLockTTL() time.Duration {
	return time.Duration(c.MailboxLockTTLSeconds) * time.Second
}

// JobLockTTL 返回定时任务互斥锁有效期.
func (c *EnrichmentConfig) JobLockTTL() time.Duration {
	return time.Duration(c.JobLockTTLSeconds) * time.Second
}

// MetadataRateLimit 返回手动生成元数据的最小间隔.
func (c *EnrichmentConfig) MetadataRateLimit() time.Duration {
	return time.Duration(c.MetadataRateLimitSeconds) * time.Second
}

// BackfillPace 返回回填入队间隔.
func (c *EnrichmentConfig) BackfillPace() time.Duration {
	return time.Duration(c.BackfillPaceSeconds) * time.Second
}

// HandlerTimeout 返回单个任务处理超时.
func (c *EnrichmentConfig) HandlerTimeout() time.Duration {
	return time.Duration(c.HandlerTimeoutSeconds) * time.Second
}

func (c *EnrichmentConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("enrichment.lock_ttl_seconds", DefaultEnrichmentLockTTL)
	v.SetDefault("enrichment.mailbox_lock_ttl_seconds", DefaultMailboxLockTTL)
	v.SetDefault("enrichment.job_lock_ttl_seconds", DefaultJobLockTTL)
	v.SetDefault("enrichment.metadata_rate_limit_seconds", DefaultMetadataRateLimit)
	v.SetDefault("enrichment.backfill_pace_seconds", DefaultBackfillPace)
	v.SetDefault("enrichment.backfill_batch", DefaultBackfillBatch)
	v.SetDefault("enrichment.max_redeliveries", DefaultMaxRedeliveries)
	v.SetDefault("enrichment.handler_timeout_seconds", DefaultHandlerTimeout)
	v.SetDefault("enrichment.transcription_concurrency", DefaultTranscriptionConcurrency)
	v.SetDefault("enrichment.sweep_cron", DefaultSweepCron)
	v.SetDefault("enrichment.reindex_cron", DefaultReindexCron)
	v.SetDefault("enrichment.queues.tag_theme", DefaultTagThemeQueue)
	v.SetDefault("enrichment.queues.structured_metadata", DefaultStructuredMetadataQueue)
}
