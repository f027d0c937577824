package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultCBEnabled           = false
	DefaultCBFailureRate       = 0.5
	DefaultCBMinRequests       = 20
	DefaultCBInterval          = time.Minute
	DefaultCBOpenTimeout       = 30 * time.Second
	DefaultCBMaxRequestsInHalf = 5
)

// CircuitBreakerConfig HTTP 入口熔断：窗口内 5xx 比例超过阈值后快速失败.
type CircuitBreakerConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	FailureRate       float64       `mapstructure:"failure_rate"         rule:"gte=0,lte=1"`
	MinRequests       uint32        `mapstructure:"min_requests"`
	Interval          time.Duration `mapstructure:"interval"`     // 统计窗口，0 表示不清零
	OpenTimeout       time.Duration `mapstructure:"open_timeout"` // 打开状态持续时间，之后半开
	MaxRequestsInHalf uint32        `mapstructure:"max_requests_in_half"`
}

func (c *CircuitBreakerConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("circuit_breaker.enabled", DefaultCBEnabled)
	v.SetDefault("circuit_breaker.failure_rate", DefaultCBFailureRate)
	v.SetDefault("circuit_breaker.min_requests", DefaultCBMinRequests)
	v.SetDefault("circuit_breaker.interval", DefaultCBInterval)
	v.SetDefault("circuit_breaker.open_timeout", DefaultCBOpenTimeout)
	v.SetDefault("circuit_breaker.max_requests_in_half", DefaultCBMaxRequestsInHalf)
}
