// Package metrics 提供监控指标功能.
// 支持Prometheus标准，收集 HTTP 指标与文档流水线指标.
//
// Example:
//
//	import "github.com/yeisme/docpipe/pkg/metrics"
//
//	err := metrics.InitMetrics(config.Metrics)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	metrics.TriggerDiscarded.WithLabelValues("malformed_key").Inc()
package metrics

import (
	"net/http"
	_ "net/http/pprof" // 自动注册pprof端点
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yeisme/docpipe/pkg/configs"
)

const namespace = "docpipe"

// HTTP 指标.
var (
	// RequestCounter HTTP请求计数器.
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint"},
	)

	// RequestDuration HTTP请求持续时间.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// ActiveConnections 活跃连接数.
	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_connections",
			Help: "Number of active connections",
		},
	)
)

// 流水线指标.
var (
	// TriggerDiscarded 被丢弃的对象事件（malformed_key / sidecar / extension / bucket）.
	TriggerDiscarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trigger_discarded_total",
			Help:      "Object-created events discarded without creating a record",
		},
		[]string{"reason"},
	)

	// TriggerOutcome 触发结果，按 outcome 标签区分.
	TriggerOutcome = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trigger_outcome_total",
			Help:      "Ingestion trigger outcomes",
		},
		[]string{"outcome"},
	)

	// StatusTransitions 状态迁移计数.
	StatusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Document status transitions applied",
		},
		[]string{"to"},
	)

	// ReconcileDuration 单次对账耗时.
	ReconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_tick_duration_seconds",
			Help:      "Duration of one reconciliation tick",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// ReconcileErrors 对账中的瞬时错误.
	ReconcileErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_errors_total",
			Help:      "Transient errors while polling external jobs",
		},
	)

	// AnalysisOutcome 内容分析结果：ok / failed / skipped / cached.
	AnalysisOutcome = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_outcome_total",
			Help:      "Content analysis outcomes",
		},
		[]string{"outcome"},
	)

	// ResyncRuns 重同步请求结果：started / already_running / skipped / failed.
	ResyncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resync_runs_total",
			Help:      "Corpus resync runs",
		},
		[]string{"result"},
	)

	// DeletionSteps 级联删除步骤结果.
	DeletionSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deletion_steps_total",
			Help:      "Cascade deletion step results per resource class",
		},
		[]string{"resource", "status"},
	)
)

var (
	// registry Prometheus注册表.
	registry = prometheus.NewRegistry()
	initOnce sync.Once
)

// InitMetrics 初始化Metrics，重复调用只注册一次.
func InitMetrics(config configs.MetricsConfig) error {
	if !config.Enabled {
		return nil
	}

	initOnce.Do(func() {
		if config.RuntimeMetrics {
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
		}

		reg := prometheus.WrapRegistererWith(prometheus.Labels(config.Labels), registry)
		reg.MustRegister(RequestCounter, RequestDuration, ActiveConnections)
		reg.MustRegister(
			TriggerDiscarded,
			TriggerOutcome,
			StatusTransitions,
			ReconcileDuration,
			ReconcileErrors,
			AnalysisOutcome,
			ResyncRuns,
			DeletionSteps,
		)
	})

	return nil
}

// StartMetricsServer 在调试引擎上挂载 /metrics.
func StartMetricsServer(config configs.MetricsConfig, debugEngine *gin.Engine) error {
	if !config.Enabled {
		return nil
	}

	path := config.Path
	if path == "" {
		path = "/metrics"
	}

	debugEngine.GET(path, gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	if config.Pprof {
		debugEngine.GET("/debug/pprof/*any", gin.WrapH(http.DefaultServeMux))
	}

	return nil
}

// GetRegistry 获取Prometheus注册表.
func GetRegistry() *prometheus.Registry {
	return registry
}
