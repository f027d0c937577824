package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultReconcileInterval    = time.Minute
	DefaultReconcileConcurrency = 8
	DefaultReconcileBatchSize   = 500
	DefaultMaxJobAge            = 2 * time.Hour
	DefaultClaimLease           = 2 * time.Minute
	DefaultResyncCron           = "0 2 * * *"
	DefaultResyncLease          = 30 * time.Minute
	DefaultDeletionRetryCron    = "*/15 * * * *"
)

// PipelineConfig 流水线阈值与调度节奏.
type PipelineConfig struct {
	// Bucket 源对象所在桶，为空时接受任意桶的事件
	Bucket string `mapstructure:"bucket"`
	// ReconcileInterval 状态对账周期
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"    rule:"min=1s"`
	// ReconcileConcurrency 单次对账并发上限
	ReconcileConcurrency int `mapstructure:"reconcile_concurrency" rule:"min=1,max=256"`
	// ReconcileBatchSize 单次对账最多扫描的记录数
	ReconcileBatchSize int `mapstructure:"reconcile_batch_size"  rule:"min=1"`
	// MaxJobAge 外部任务最长存活时间，超过后强制 FAILED(TIMEOUT)
	MaxJobAge time.Duration `mapstructure:"max_job_age"           rule:"min=1s"`
	// ClaimLease 注册外部任务时的认领租约，进程崩溃后租约过期可被重新认领
	ClaimLease time.Duration `mapstructure:"claim_lease"           rule:"min=1s"`
	// ResyncCron 语料全量重同步的 cron 表达式
	ResyncCron string `mapstructure:"resync_cron"           rule:"required"`
	// ResyncLease 重同步分布式租约时长
	ResyncLease time.Duration `mapstructure:"resync_lease"          rule:"min=1s"`
	// DeletionRetryCron 未完成级联删除的重试周期
	DeletionRetryCron string `mapstructure:"deletion_retry_cron"   rule:"required"`
	// AllowedExtensions 允许摄取的文件扩展名
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
	// TagOwner 是否给源对象打 owner 标签
	TagOwner bool `mapstructure:"tag_owner"`
	// WriteProcessingSidecar 是否写 .processing.json 状态链
	WriteProcessingSidecar bool `mapstructure:"write_processing_sidecar"`
}

func (c *PipelineConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.bucket", "docpipe")
	v.SetDefault("pipeline.reconcile_interval", DefaultReconcileInterval)
	v.SetDefault("pipeline.reconcile_concurrency", DefaultReconcileConcurrency)
	v.SetDefault("pipeline.reconcile_batch_size", DefaultReconcileBatchSize)
	v.SetDefault("pipeline.max_job_age", DefaultMaxJobAge)
	v.SetDefault("pipeline.claim_lease", DefaultClaimLease)
	v.SetDefault("pipeline.resync_cron", DefaultResyncCron)
	v.SetDefault("pipeline.resync_lease", DefaultResyncLease)
	v.SetDefault("pipeline.deletion_retry_cron", DefaultDeletionRetryCron)
	v.SetDefault("pipeline.allowed_extensions", []string{".pdf", ".txt", ".doc", ".docx"})
	v.SetDefault("pipeline.tag_owner", true)
	v.SetDefault("pipeline.write_processing_sidecar", true)
}
