// Package storetest 提供基于内存 SQLite 的测试数据库.
package storetest

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeisme/docpipe/pkg/internal/model"
)

// NewDB 打开一个私有的内存数据库并完成迁移，测试结束时关闭.
func NewDB(tb testing.TB) *gorm.DB {
	tb.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("sql db: %v", err)
	}

	// 内存库每个连接独立，固定单连接
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(model.Models()...); err != nil {
		tb.Fatalf("migrate: %v", err)
	}

	tb.Cleanup(func() { _ = sqlDB.Close() })

	return db
}
