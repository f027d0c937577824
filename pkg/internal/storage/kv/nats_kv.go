package kv

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/yeisme/docpipe/pkg/configs"
)

// NATSKV 基于 NATS JetStream KeyValue 的 KV 实现.
type NATSKV struct {
	kv   nats.KeyValue
	conn *nats.Conn
}

// NewNATSKV 创建 NATS KV 实例，bucket 不存在时自动创建.
func NewNATSKV(_ context.Context, cfg configs.NATSKVConfig) (*NATSKV, error) {
	opts := []nats.Option{nats.Name("docpipe-kv")}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	kv, err := js.KeyValue(cfg.Bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: cfg.Bucket})
	}

	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create/get KV bucket %s: %w", cfg.Bucket, err)
	}

	return &NATSKV{kv: kv, conn: nc}, nil
}

// live 读取条目并处理过期，返回 (value, revision, found, error).
func (n *NATSKV) live(key string) ([]byte, uint64, bool, error) {
	entry, err := n.kv.Get(key)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, 0, false, nil
	}

	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to get key: %w", err)
	}

	val, expired, err := decodeWithTTL(entry.Value(), time.Now())
	if err != nil {
		return nil, 0, false, err
	}

	if expired {
		return nil, entry.Revision(), false, nil
	}

	return val, entry.Revision(), true, nil
}

// Get 获取键的值.
func (n *NATSKV) Get(_ context.Context, key string) ([]byte, error) {
	val, rev, found, err := n.live(key)
	if err != nil {
		return nil, err
	}

	if !found {
		if rev > 0 {
			_ = n.kv.Delete(key)
		}

		return nil, ErrKeyNotFound
	}

	return val, nil
}

// Set 设置键的值.
func (n *NATSKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	encoded, err := encodeWithTTL(value, ttl, time.Now())
	if err != nil {
		return err
	}

	if _, err := n.kv.Put(key, encoded); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}

	return nil
}

// SetNX 用 Create 保证原子性；已过期的旧值按 revision 做 CAS 覆盖.
func (n *NATSKV) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	encoded, err := encodeWithTTL(value, ttl, time.Now())
	if err != nil {
		return false, err
	}

	_, err = n.kv.Create(key, encoded)
	if err == nil {
		return true, nil
	}

	if !errors.Is(err, nats.ErrKeyExists) {
		return false, fmt.Errorf("failed to create key: %w", err)
	}

	_, rev, found, err := n.live(key)
	if err != nil || found {
		return false, err
	}

	if _, err := n.kv.Update(key, encoded, rev); err != nil {
		// 另一个副本抢先更新
		return false, nil
	}

	return true, nil
}

// Delete 删除键.
func (n *NATSKV) Delete(_ context.Context, key string) error {
	if err := n.kv.Delete(key); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}

	return nil
}

// Exists 检查键是否存在.
func (n *NATSKV) Exists(_ context.Context, key string) (bool, error) {
	_, _, found, err := n.live(key)

	return found, err
}

// Keys 获取匹配 glob 模式的键.
func (n *NATSKV) Keys(_ context.Context, pattern string) ([]string, error) {
	keys, err := n.kv.Keys()
	if errors.Is(err, nats.ErrNoKeysFound) {
		return []string{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get keys: %w", err)
	}

	result := make([]string, 0, len(keys))

	for _, key := range keys {
		if pattern != "" {
			if ok, _ := path.Match(pattern, key); !ok {
				continue
			}
		}

		if _, _, found, err := n.live(key); err != nil || !found {
			continue
		}

		result = append(result, key)
	}

	return result, nil
}

// Close 关闭 NATS 连接.
func (n *NATSKV) Close() error {
	n.conn.Close()
	return nil
}

func init() {
	RegisterKVFactory(KVTypeNATS, func(ctx context.Context, cfg configs.KVConfig) (KVStore, error) {
		return NewNATSKV(ctx, cfg.NATS)
	})
}
