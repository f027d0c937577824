// Package cache 提供基于键值存储的泛型缓存实现.
//
// 值使用 sonic 序列化，支持 TTL. 未命中通过 ok=false 返回，不视为错误.
// 流水线用它缓存推理结果（按对象版本与模型区分）.
//
// 基本用法:
//
//	c := cache.NewCache(kvStore, "infer")
//	insights, ok, err := cache.Get[Insights](ctx, c, key)
//	err = cache.Set(ctx, c, key, insights, 24*time.Hour)
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"github.com/yeisme/docpipe/pkg/internal/storage/kv"
)

// Cache 基于KV存储的缓存实现.
type Cache struct {
	kvStore kv.KVStore
	prefix  string
}

// NewCache 创建缓存实例，prefix 非空时所有键加上 "prefix." 前缀.
func NewCache(kvStore kv.KVStore, prefix string) *Cache {
	return &Cache{kvStore: kvStore, prefix: prefix}
}

func (c *Cache) key(key string) string {
	if c.prefix == "" {
		return key
	}

	return c.prefix + "." + key
}

// Get 泛型获取缓存值.
func Get[T any](ctx context.Context, c *Cache, key string) (T, bool, error) {
	var zero T

	data, err := c.kvStore.Get(ctx, c.key(key))
	if errors.Is(err, kv.ErrKeyNotFound) {
		return zero, false, nil
	}

	if err != nil {
		return zero, false, err
	}

	var value T
	if err := sonic.Unmarshal(data, &value); err != nil {
		return zero, false, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}

	return value, true, nil
}

// Set 泛型设置缓存值.
func Set[T any](ctx context.Context, c *Cache, key string, value T, ttl time.Duration) error {
	data, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	return c.kvStore.Set(ctx, c.key(key), data, ttl)
}

// Delete 删除缓存键.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.kvStore.Delete(ctx, c.key(key))
}

// Exists 检查缓存键是否存在.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	return c.kvStore.Exists(ctx, c.key(key))
}

// GetOrSet 获取缓存值，不存在时调用 getter 并写回. 写回失败不影响返回值.
func GetOrSet[T any](ctx context.Context, c *Cache, key string, getter func() (T, error), ttl time.Duration) (T, error) {
	if value, ok, err := Get[T](ctx, c, key); err == nil && ok {
		return value, nil
	}

	value, err := getter()
	if err != nil {
		var zero T
		return zero, err
	}

	_ = Set(ctx, c, key, value, ttl)

	return value, nil
}

// Clear 清空当前前缀下的缓存.
func (c *Cache) Clear(ctx context.Context) error {
	pattern := "*"
	if c.prefix != "" {
		pattern = c.prefix + ".*"
	}

	keys, err := c.kvStore.Keys(ctx, pattern)
	if err != nil {
		return err
	}

	for _, key := range keys {
		if delErr := c.kvStore.Delete(ctx, key); delErr != nil {
			return delErr
		}
	}

	return nil
}
