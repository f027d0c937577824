package kv

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/yeisme/docpipe/pkg/configs"
)

type memoryEntry struct {
	value    []byte
	expireAt time.Time // 零值表示不过期
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// MemoryKV 进程内 KV 实现，单副本部署和测试使用.
type MemoryKV struct {
	mu   sync.Mutex
	data map[string]memoryEntry
	now  func() time.Time
}

// NewMemoryKV 创建内存 KV 实例.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]memoryEntry), now: time.Now}
}

// load 返回未过期的条目，过期条目顺手删除. 调用方持有锁.
func (m *MemoryKV) load(key string) (memoryEntry, bool) {
	e, ok := m.data[key]
	if !ok {
		return memoryEntry{}, false
	}

	if e.expired(m.now()) {
		delete(m.data, key)
		return memoryEntry{}, false
	}

	return e, true
}

func (m *MemoryKV) entry(value []byte, ttl time.Duration) memoryEntry {
	data := make([]byte, len(value))
	copy(data, value)

	e := memoryEntry{value: data}
	if ttl > 0 {
		e.expireAt = m.now().Add(ttl)
	}

	return e
}

// Get 获取键的值.
func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.load(key)
	if !ok {
		return nil, ErrKeyNotFound
	}

	result := make([]byte, len(e.value))
	copy(result, e.value)

	return result, nil
}

// Set 设置键的值.
func (m *MemoryKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = m.entry(value, ttl)

	return nil
}

// SetNX 键不存在时写入.
func (m *MemoryKV) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.load(key); ok {
		return false, nil
	}

	m.data[key] = m.entry(value, ttl)

	return true, nil
}

// Delete 删除键.
func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)

	return nil
}

// Exists 检查键是否存在.
func (m *MemoryKV) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.load(key)

	return ok, nil
}

// Keys 获取匹配 glob 模式的键，空模式返回全部.
func (m *MemoryKV) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.data))

	for k := range m.data {
		if _, ok := m.load(k); !ok {
			continue
		}

		if pattern != "" {
			matched, err := path.Match(pattern, k)
			if err != nil {
				return nil, err
			}

			if !matched {
				continue
			}
		}

		keys = append(keys, k)
	}

	return keys, nil
}

// Close 关闭存储（内存实现无需操作）.
func (m *MemoryKV) Close() error {
	return nil
}

func init() {
	RegisterKVFactory(KVTypeMemory, func(_ context.Context, _ configs.KVConfig) (KVStore, error) {
		return NewMemoryKV(), nil
	})
}
