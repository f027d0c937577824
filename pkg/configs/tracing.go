package configs

import (
	"time"

	"github.com/spf13/viper"
)

// 追踪导出器类型.
const (
	TraceExporterOTLPHTTP = "otlp-http"
	TraceExporterOTLPGRPC = "otlp-grpc"
	TraceExporterZipkin   = "zipkin"
)

// TracingConfig OpenTelemetry 追踪配置.
// 未开启时 span 仍会创建，只是不导出.
type TracingConfig struct {
	Enabled        bool              `mapstructure:"enabled"`
	ServiceName    string            `mapstructure:"service_name"    rule:"required_if=Enabled true"`
	ExporterType   string            `mapstructure:"exporter_type"   rule:"omitempty,oneof=otlp-http otlp-grpc zipkin"`
	Endpoint       string            `mapstructure:"endpoint"`
	SampleRate     float64           `mapstructure:"sample_rate"     rule:"gte=0,lte=1"`
	BatchTimeout   time.Duration     `mapstructure:"batch_timeout"`
	MaxBatchSize   int               `mapstructure:"max_batch_size"  rule:"gte=0"`
	MaxQueueSize   int               `mapstructure:"max_queue_size"  rule:"gte=0"`
	ResourceLabels map[string]string `mapstructure:"resource_labels"`
}

func (c *TracingConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "docpipe")
	v.SetDefault("tracing.exporter_type", TraceExporterOTLPHTTP)
	v.SetDefault("tracing.endpoint", "http://localhost:4318")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.batch_timeout", 5*time.Second)
	v.SetDefault("tracing.max_batch_size", 512)
	v.SetDefault("tracing.max_queue_size", 2048)
	v.SetDefault("tracing.resource_labels", map[string]string{})
}
