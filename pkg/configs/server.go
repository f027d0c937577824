package configs

import (
	"net"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig HTTP 服务配置.
type ServerConfig struct {
	Host            string        `mapstructure:"host"             rule:"omitempty,ip"`
	Port            int           `mapstructure:"port"             rule:"min=1,max=65535"`
	ReloadConfig    bool          `mapstructure:"reload_config"`                    // 监听配置文件，仅日志级别生效
	Debug           bool          `mapstructure:"debug"`                            // gin 调试模式
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     rule:"gte=0"`    // 读取请求头超时
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" rule:"gt=0"`     // 优雅退出等待上限
}

// Addr 监听地址.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (s *ServerConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.reload_config", false)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
}
