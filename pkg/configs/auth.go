package configs

import "github.com/spf13/viper"

// AuthConfig 控制身份头校验（优先支持 oauth2-proxy 注入的请求头）。
// 身份签发不在本服务范围内，这里只信任上游代理写入的头部.
type AuthConfig struct {
	Enabled       bool     `mapstructure:"enabled"`         // 开启认证校验
	SkipPaths     []string `mapstructure:"skip_paths"`      // 跳过认证的路径前缀（如 /metrics、/api/v1/health）
	DevAllowQuery bool     `mapstructure:"dev_allow_query"` // 开发模式允许用 ?owner= 便于本地调试
	OwnerHeaders  []string `mapstructure:"owner_headers"`   // 按顺序读取 owner 标识的请求头
}

func (c *AuthConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.dev_allow_query", false)
	v.SetDefault("auth.skip_paths", []string{
		"/metrics",
		"/debug/pprof",
		"/api/v1/health",
	})
	v.SetDefault("auth.owner_headers", []string{
		"X-Auth-Request-User",
		"X-Forwarded-User",
		"X-Owner-Id",
	})
}
