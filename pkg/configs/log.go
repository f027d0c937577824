package configs

import "github.com/spf13/viper"

// 日志输出格式.
const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// LogConfig 日志配置. Level 支持热重载，其余字段只在启动时生效.
type LogConfig struct {
	Level  string `mapstructure:"level"  rule:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `mapstructure:"format" rule:"omitempty,oneof=console json"` // stderr 输出格式

	// 文件输出由 lumberjack 轮转
	EnableFile bool   `mapstructure:"enable_file"`
	FilePath   string `mapstructure:"file_path"    rule:"required_if=EnableFile true"`
	MaxSize    int    `mapstructure:"max_size_mb"  rule:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups"  rule:"gte=0"`
	MaxAge     int    `mapstructure:"max_age_days" rule:"gte=0"`
	Compress   bool   `mapstructure:"compress"`
}

func (l *LogConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", LogFormatConsole)
	v.SetDefault("log.enable_file", false)
	v.SetDefault("log.file_path", "logs/docpipe.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", true)
}
