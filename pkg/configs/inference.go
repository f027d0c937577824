package configs

import (
	"time"

	"github.com/spf13/viper"
)

// InferenceConfig 外部推理引擎（OpenAI 兼容接口）配置.
type InferenceConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	BaseURL      string        `mapstructure:"base_url"       rule:"required,url"`
	Token        string        `mapstructure:"token"`
	ModelID      string        `mapstructure:"model_id"       rule:"required"`
	Timeout      time.Duration `mapstructure:"timeout"        rule:"min=1s"`
	MaxChars     int           `mapstructure:"max_chars"      rule:"min=100"`
	MaxReadBytes int64         `mapstructure:"max_read_bytes" rule:"min=1024"`
	MaxPDFBytes  int64         `mapstructure:"max_pdf_bytes"  rule:"gte=0"` // PDF 整体读入解析的上限，0 表示同 max_read_bytes
	Temperature  float64       `mapstructure:"temperature"    rule:"min=0,max=2"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	Retry        RetryConfig   `mapstructure:"retry"`
}

func (c *InferenceConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("inference.enabled", true)
	v.SetDefault("inference.base_url", "http://localhost:11434/v1")
	v.SetDefault("inference.token", "none")
	v.SetDefault("inference.model_id", "llama3.1")
	v.SetDefault("inference.timeout", 60*time.Second)
	v.SetDefault("inference.max_chars", 15000)
	v.SetDefault("inference.max_read_bytes", 100*1024)
	v.SetDefault("inference.max_pdf_bytes", 20<<20)
	v.SetDefault("inference.temperature", 0.0)
	v.SetDefault("inference.cache_ttl", 24*time.Hour)
	setRetryDefaults(v, "inference.retry")
	v.SetDefault("inference.retry.max_attempts", 2)
}
