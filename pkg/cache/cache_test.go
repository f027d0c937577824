package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yeisme/docpipe/pkg/cache"
	"github.com/yeisme/docpipe/pkg/internal/storage/kv"
)

// testInsights 测试用的缓存值.
type testInsights struct {
	DocumentType string         `json:"documentType"`
	Confidence   float64        `json:"confidence"`
	Data         map[string]any `json:"data"`
}

func newCache() (*cache.Cache, *kv.MemoryKV) {
	store := kv.NewMemoryKV()
	return cache.NewCache(store, "infer"), store
}

// TestCache_GetMiss 未命中不返回错误.
func TestCache_GetMiss(t *testing.T) {
	c, _ := newCache()

	_, ok, err := cache.Get[testInsights](context.Background(), c, "nonexistent")
	if err != nil {
		t.Fatalf("miss should not be an error: %v", err)
	}

	if ok {
		t.Fatal("expected miss")
	}
}

// TestCache_SetGet 写入后能读到同样的值，键带前缀.
func TestCache_SetGet(t *testing.T) {
	c, store := newCache()
	ctx := context.Background()

	in := testInsights{DocumentType: "iep", Confidence: 0.85, Data: map[string]any{"goals": "3"}}
	if err := cache.Set(ctx, c, "etag1.llama", in, time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}

	if ok, _ := store.Exists(ctx, "infer.etag1.llama"); !ok {
		t.Fatal("expected prefixed key in store")
	}

	out, ok, err := cache.Get[testInsights](ctx, c, "etag1.llama")
	if err != nil || !ok {
		t.Fatalf("get = %v, %v", ok, err)
	}

	if out.DocumentType != "iep" || out.Confidence != 0.85 || out.Data["goals"] != "3" {
		t.Errorf("unexpected value %+v", out)
	}
}

// TestCache_Delete 删除后不存在.
func TestCache_Delete(t *testing.T) {
	c, _ := newCache()
	ctx := context.Background()

	if err := cache.Set(ctx, c, "k", "v", 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if ok, _ := c.Exists(ctx, "k"); ok {
		t.Error("key should not exist after deletion")
	}
}

// TestGetOrSet getter 只调用一次.
func TestGetOrSet(t *testing.T) {
	c, _ := newCache()
	ctx := context.Background()

	calls := 0
	getter := func() (testInsights, error) {
		calls++
		return testInsights{DocumentType: "other", Confidence: 0.5}, nil
	}

	first, err := cache.GetOrSet(ctx, c, "etag2.llama", getter, time.Hour)
	if err != nil {
		t.Fatalf("first: %v", err)
	}

	second, err := cache.GetOrSet(ctx, c, "etag2.llama", getter, time.Hour)
	if err != nil {
		t.Fatalf("second: %v", err)
	}

	if calls != 1 {
		t.Errorf("expected getter to be called once, got %d", calls)
	}

	if first.DocumentType != second.DocumentType {
		t.Errorf("results don't match: %+v vs %+v", first, second)
	}
}

// TestGetOrSet_GetterError getter 出错时不写缓存.
func TestGetOrSet_GetterError(t *testing.T) {
	c, _ := newCache()
	ctx := context.Background()

	_, err := cache.GetOrSet(ctx, c, "bad", func() (testInsights, error) {
		return testInsights{}, errors.New("getter error")
	}, 0)
	if err == nil || err.Error() != "getter error" {
		t.Fatalf("expected getter error, got %v", err)
	}

	if ok, _ := c.Exists(ctx, "bad"); ok {
		t.Error("failed getter must not populate the cache")
	}
}

// TestCache_ClearOnlyPrefix Clear 只删除本前缀下的键.
func TestCache_ClearOnlyPrefix(t *testing.T) {
	c, store := newCache()
	ctx := context.Background()

	_ = cache.Set(ctx, c, "a", 1, 0)
	_ = cache.Set(ctx, c, "b", 2, 0)
	_ = store.Set(ctx, "lease.resync", []byte("x"), 0)

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}

	keys, _ := store.Keys(ctx, "")
	if len(keys) != 1 || keys[0] != "lease.resync" {
		t.Errorf("expected only lease key to remain, got %v", keys)
	}
}
