package jobs

// 任务名称常量，调度器接口按名称操作任务.
const (
	JobTagBackfill      = "enrichment.tag_backfill"
	JobMetadataBackfill = "enrichment.metadata_backfill"
	JobReindexAll       = "index.reindex_all"
)
