//go:build !no_sqlite && !cgo

package db

import (
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/yeisme/docpipe/pkg/configs"
)

// 纯 Go 驱动：打开外键约束（删除步骤随任务级联），写锁冲突时等待而不是立即失败.
func init() {
	RegisterDialectorFactory(configs.SQLite, func(dsn string) gorm.Dialector {
		return sqlite.Open(withParams(dsn, "_pragma=foreign_keys(1)", "_pragma=busy_timeout(5000)"))
	})
}
