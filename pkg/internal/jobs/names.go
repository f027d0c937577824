package jobs

// 任务名称常量，调度管理接口与 CLI 按名称触发.
const (
	JobReconcile      = "pipeline.reconcile"
	JobResync         = "corpus.resync"
	JobDeletionsRetry = "deletions.retry"
)

// DeletionRetryBatch 每次重试最多处理的删除任务数.
const DeletionRetryBatch = 100
