package configs

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DBType 元数据库类型，别名经 Driver 归一.
type DBType string

// 规范驱动名.
const (
	PostgreSQL DBType = "postgresql"
	MySQL      DBType = "mysql"
	SQLite     DBType = "sqlite"
)

var dbAliases = map[string]DBType{
	"postgresql": PostgreSQL,
	"postgres":   PostgreSQL,
	"postgre":    PostgreSQL,
	"pg":         PostgreSQL,
	"mysql":      MySQL,
	"mariadb":    MySQL,
	"sqlite":     SQLite,
	"sqlite3":    SQLite,
}

// DBConfig 元数据库配置. DSN 非空时忽略分项字段.
type DBConfig struct {
	Type     DBType `mapstructure:"type"     rule:"oneof=postgresql postgres postgre pg mysql mariadb sqlite sqlite3"`
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"     rule:"omitempty,hostname|ip"`
	Port     int    `mapstructure:"port"     rule:"min=1,max=65535"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database" rule:"required"`
	SSLMode  string `mapstructure:"sslmode"  rule:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"    rule:"min=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    rule:"min=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" rule:"gte=0"`

	AutoMigrate   bool          `mapstructure:"auto_migrate"` // 启动时建表
	LogLevel      string        `mapstructure:"log_level"      rule:"oneof=silent error warn info"`
	SlowThreshold time.Duration `mapstructure:"slow_threshold" rule:"gte=0"` // 慢查询告警阈值
}

// Driver 返回归一后的驱动名，未知类型原样返回.
func (c *DBConfig) Driver() DBType {
	if d, ok := dbAliases[strings.ToLower(string(c.Type))]; ok {
		return d
	}

	return c.Type
}

// GetDSN 生成连接串，显式 DSN 优先. 时间统一按 UTC.
func (c *DBConfig) GetDSN() string {
	if c.DSN != "" {
		return c.DSN
	}

	switch c.Driver() {
	case PostgreSQL:
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
	case MySQL:
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			c.User, c.Password, net.JoinHostPort(c.Host, strconv.Itoa(c.Port)), c.Database)
	case SQLite:
		return "file:" + c.Database + ".db"
	default:
		return ""
	}
}

func (c *DBConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("db.type", SQLite)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.database", "docpipe")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open_conns", 0)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", time.Hour)
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("db.log_level", "warn")
	v.SetDefault("db.slow_threshold", 200*time.Millisecond)
}
