// Package db 处理元数据库连接，按配置类型选择 gorm dialector.
package db

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormPrometheus "gorm.io/plugin/prometheus"

	"github.com/yeisme/docpipe/pkg/configs"
	nlog "github.com/yeisme/docpipe/pkg/log"
)

// DialectorFactory 由连接串构造 gorm dialector.
type DialectorFactory func(dsn string) gorm.Dialector

// dialectors 以归一后的驱动名为键，由各驱动文件在 init 中注册（可用 build tag 裁剪）.
var dialectors = map[configs.DBType]DialectorFactory{}

// RegisterDialectorFactory 注册驱动.
func RegisterDialectorFactory(driver configs.DBType, factory DialectorFactory) {
	dialectors[driver] = factory
}

// GetRegisteredDBTypes 已编译进来的驱动，有序.
func GetRegisteredDBTypes() []configs.DBType {
	drivers := make([]configs.DBType, 0, len(dialectors))
	for d := range dialectors {
		drivers = append(drivers, d)
	}

	sort.Slice(drivers, func(i, j int) bool { return drivers[i] < drivers[j] })

	return drivers
}

// Client 包装 GORM DB 客户端.
type Client struct {
	*gorm.DB
}

// New 按配置打开数据库连接并配置连接池.
func New(ctx context.Context, cfg configs.DBConfig, withMetrics bool) (*Client, error) {
	driver := cfg.Driver()

	factory, ok := dialectors[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database type %q (compiled in: %v)", cfg.Type, GetRegisteredDBTypes())
	}

	dsn := cfg.GetDSN()
	if dsn == "" {
		return nil, fmt.Errorf("empty dsn for database type %q", cfg.Type)
	}

	gormLogger := logger.New(
		nlog.Logger(),
		logger.Config{
			SlowThreshold:             cfg.SlowThreshold,
			LogLevel:                  parseLogLevel(cfg.LogLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(factory(dsn), &gorm.Config{
		Logger:      gormLogger,
		PrepareStmt: true,
		NowFunc:     func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if driver == configs.SQLite {
		// SQLite 只允许单写者，串行化连接避免 database is locked
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	client := &Client{DB: db}

	if withMetrics {
		if err := client.RegisterGORMMetrics(cfg.Database); err != nil {
			return nil, err
		}
	}

	nlog.Logger().Info().
		Str("driver", string(driver)).
		Str("database", cfg.Database).
		Msg("database connected")

	return client, nil
}

func parseLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// GetDB 返回 GORM DB 实例.
func (c *Client) GetDB() *gorm.DB {
	return c.DB
}

// Migrate 自动迁移给定模型.
func (c *Client) Migrate(models ...any) error {
	if err := c.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	return nil
}

// Close 关闭底层连接.
func (c *Client) Close() error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

const defaultGORMMetricsRefreshInterval = 15 // 秒

// RegisterGORMMetrics 注册GORM连接池指标.
func (c *Client) RegisterGORMMetrics(dbName string) error {
	promConfig := gormPrometheus.Config{
		DBName:          dbName,
		RefreshInterval: defaultGORMMetricsRefreshInterval,
		StartServer:     false,
	}

	if err := c.Use(gormPrometheus.New(promConfig)); err != nil {
		return fmt.Errorf("failed to register GORM prometheus plugin: %w", err)
	}

	return nil
}
