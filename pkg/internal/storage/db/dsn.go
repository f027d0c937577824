package db

import "strings"

// withParams 把缺失的 key=value 参数追加到 URL 风格 DSN 的查询串上.
func withParams(dsn string, params ...string) string {
	for _, p := range params {
		if strings.Contains(dsn, p) {
			continue
		}

		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}

		dsn += sep + p
	}

	return dsn
}
