package configs

import (
	"time"

	"github.com/spf13/viper"
)

// 限流维度.
const (
	RateLimitByOwner  = "owner"
	RateLimitByIP     = "ip"
	RateLimitByGlobal = "global"
)

const (
	DefaultRateLimitEnabled = false
	DefaultRateLimitRPS     = 50.0
	DefaultRateLimitBurst   = 100
	DefaultRateLimitKey     = RateLimitByOwner
	DefaultRateLimitIdleTTL = 10 * time.Minute
)

// RateLimitConfig HTTP 入口限流. 按 owner 限流时未认证请求退化为按 IP.
type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	RPS     float64       `mapstructure:"rps"      rule:"gte=0"`
	Burst   int           `mapstructure:"burst"    rule:"gte=0"`
	Key     string        `mapstructure:"key"      rule:"omitempty,oneof=owner ip global"`
	IdleTTL time.Duration `mapstructure:"idle_ttl"` // 闲置多久的限流器被回收
}

func (c *RateLimitConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("rate_limit.enabled", DefaultRateLimitEnabled)
	v.SetDefault("rate_limit.rps", DefaultRateLimitRPS)
	v.SetDefault("rate_limit.burst", DefaultRateLimitBurst)
	v.SetDefault("rate_limit.key", DefaultRateLimitKey)
	v.SetDefault("rate_limit.idle_ttl", DefaultRateLimitIdleTTL)
}
