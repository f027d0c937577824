//go:build !no_sqlite && cgo

package db

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yeisme/docpipe/pkg/configs"
)

// cgo 驱动，参数与纯 Go 版本语义一致.
func init() {
	RegisterDialectorFactory(configs.SQLite, func(dsn string) gorm.Dialector {
		return sqlite.Open(withParams(dsn, "_foreign_keys=1", "_busy_timeout=5000"))
	})
}
