//go:build !no_postgres

package db

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/yeisme/docpipe/pkg/configs"
)

func init() {
	RegisterDialectorFactory(configs.PostgreSQL, func(dsn string) gorm.Dialector {
		return postgres.New(postgres.Config{DSN: dsn})
	})
}
