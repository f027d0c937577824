package configs

import (
	"time"

	"github.com/spf13/viper"
)

// RetryConfig 出站调用的重试与熔断参数.
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"    rule:"min=1,max=10"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	Multiplier     float64       `mapstructure:"multiplier"      rule:"min=1"`

	BreakerEnabled      bool          `mapstructure:"breaker_enabled"`
	BreakerMinRequests  uint32        `mapstructure:"breaker_min_requests"`
	BreakerFailureRatio float64       `mapstructure:"breaker_failure_ratio" rule:"min=0,max=1"`
	BreakerOpenTimeout  time.Duration `mapstructure:"breaker_open_timeout"`
	BreakerHalfOpenMax  uint32        `mapstructure:"breaker_half_open_max"`
}

// EngineConfig 外部语料摄取引擎（HTTP 作业 API）配置.
type EngineConfig struct {
	BaseURL      string        `mapstructure:"base_url"       rule:"required,url"`
	Token        string        `mapstructure:"token"`
	DataSourceID string        `mapstructure:"data_source_id" rule:"required"`
	Timeout      time.Duration `mapstructure:"timeout"        rule:"min=1s"`
	RPS          float64       `mapstructure:"rps"            rule:"min=0"`
	Burst        int           `mapstructure:"burst"          rule:"min=1"`
	Retry        RetryConfig   `mapstructure:"retry"`
}

// RegistrationBudget 一次注册调用最坏情况下的耗时：调用超时加上全部重试退避.
func (c EngineConfig) RegistrationBudget() time.Duration {
	budget := c.Timeout
	backoff := c.Retry.InitialBackoff

	for i := 1; i < c.Retry.MaxAttempts; i++ {
		budget += min(backoff, c.Retry.MaxBackoff)
		backoff = time.Duration(float64(backoff) * c.Retry.Multiplier)
	}

	return budget
}

func setRetryDefaults(v *viper.Viper, prefix string) {
	v.SetDefault(prefix+".max_attempts", 3)
	v.SetDefault(prefix+".initial_backoff", 200*time.Millisecond)
	v.SetDefault(prefix+".max_backoff", 2*time.Second)
	v.SetDefault(prefix+".multiplier", 2.0)
	v.SetDefault(prefix+".breaker_enabled", true)
	v.SetDefault(prefix+".breaker_min_requests", 10)
	v.SetDefault(prefix+".breaker_failure_ratio", 0.5)
	v.SetDefault(prefix+".breaker_open_timeout", 30*time.Second)
	v.SetDefault(prefix+".breaker_half_open_max", 2)
}

func (c *EngineConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("engine.base_url", "http://localhost:8090")
	v.SetDefault("engine.token", "")
	v.SetDefault("engine.data_source_id", "docpipe-corpus")
	v.SetDefault("engine.timeout", 30*time.Second)
	v.SetDefault("engine.rps", 20.0)
	v.SetDefault("engine.burst", 40)
	setRetryDefaults(v, "engine.retry")
}
