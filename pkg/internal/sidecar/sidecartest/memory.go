// Package sidecartest 提供内存版对象存储，供旁路文件与服务层测试使用.
package sidecartest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/yeisme/docpipe/pkg/internal/storage/s3"
)

// ErrInjected 测试注入的失败.
var ErrInjected = errors.New("sidecartest: injected failure")

// MemoryStore 线程安全的内存对象存储，键为 bucket/key.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	tags    map[string]map[string]string

	// 为真时对应操作返回 ErrInjected
	FailPut    bool
	FailRead   bool
	FailList   bool
	FailRemove bool
	FailTags   bool
}

// NewMemoryStore 创建空存储.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		tags:    make(map[string]map[string]string),
	}
}

func id(bucket, key string) string { return bucket + "/" + key }

// Put 直接写入对象（模拟上传）.
func (m *MemoryStore) Put(bucket, key string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[id(bucket, key)] = append([]byte(nil), body...)
}

// Has 对象是否存在.
func (m *MemoryStore) Has(bucket, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.objects[id(bucket, key)]

	return ok
}

// Get 返回对象内容.
func (m *MemoryStore) Get(bucket, key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.objects[id(bucket, key)]
}

// Tags 返回对象标签.
func (m *MemoryStore) Tags(bucket, key string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.tags[id(bucket, key)]
}

// Len 对象数量.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.objects)
}

func (m *MemoryStore) Read(_ context.Context, bucket, key string, limit int64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailRead {
		return nil, ErrInjected
	}

	b, ok := m.objects[id(bucket, key)]
	if !ok {
		return nil, s3.ErrObjectNotFound
	}

	if limit > 0 && int64(len(b)) > limit {
		b = b[:limit]
	}

	return append([]byte(nil), b...), nil
}

func (m *MemoryStore) PutJSON(_ context.Context, bucket, key string, body []byte) error {
	if m.FailPut {
		return ErrInjected
	}

	m.Put(bucket, key, body)

	return nil
}

func (m *MemoryStore) List(_ context.Context, bucket, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailList {
		return nil, ErrInjected
	}

	var keys []string

	for k := range m.objects {
		if rest, ok := strings.CutPrefix(k, bucket+"/"); ok && strings.HasPrefix(rest, prefix) {
			keys = append(keys, rest)
		}
	}

	sort.Strings(keys)

	return keys, nil
}

func (m *MemoryStore) Remove(_ context.Context, bucket string, keys []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailRemove {
		return 0, ErrInjected
	}

	for _, k := range keys {
		delete(m.objects, id(bucket, k))
		delete(m.tags, id(bucket, k))
	}

	return len(keys), nil
}

func (m *MemoryStore) SetTags(_ context.Context, bucket, key string, tags map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailTags {
		return ErrInjected
	}

	if _, ok := m.objects[id(bucket, key)]; !ok {
		return s3.ErrObjectNotFound
	}

	m.tags[id(bucket, key)] = tags

	return nil
}
