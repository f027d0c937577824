// Package store 基于 gorm 的元数据存储. 所有状态写入都是带条件的单条 UPDATE，
// 以 (当前状态, 外部任务 id, 尝试代数) 作为比较条件，丢失竞争时返回 ErrConflict.
package store

import (
	"errors"
	"time"
)

var (
	// ErrNotFound 记录不存在.
	ErrNotFound = errors.New("store: record not found")
	// ErrConflict 条件更新未命中，记录已被并发修改.
	ErrConflict = errors.New("store: conditional update lost")
)

// Clock 返回当前时间，测试中可替换.
type Clock func() time.Time

func utcNow() time.Time {
	return time.Now().UTC()
}
