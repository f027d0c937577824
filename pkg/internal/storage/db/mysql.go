//go:build !no_mysql

package db

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/yeisme/docpipe/pkg/configs"
)

// 记录时间统一按 UTC 存取，显式 DSN 缺少时补上.
func init() {
	RegisterDialectorFactory(configs.MySQL, func(dsn string) gorm.Dialector {
		return mysql.Open(withParams(dsn, "parseTime=True", "loc=UTC"))
	})
}
