package cache

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-pipeline/logger"
	"github.com/saiset-co/sai-pipeline/types"
)

func newTestMemoryCache(t *testing.T, config interface{}) types.CacheManager {
	t.Helper()

	manager, err := NewMemoryCache(context.Background(), logger.NewZapWrapper(zap.NewNop()), &types.CacheConfig{
		Enabled: true,
		Type:    "memory",
		Config:  config,
	})
	if err != nil {
		t.Fatalf("NewMemoryCache: %v", err)
	}
	return manager
}

func TestMemoryCacheSetAndGet(t *testing.T) {
	c := newTestMemoryCache(t, nil)

	if err := c.Set("k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	value, ok := c.Get("k")
	if !ok || value != "v" {
		t.Fatalf("get = (%v, %v), want (v, true)", value, ok)
	}

	if _, ok := c.Get("missing"); ok {
		t.Fatal("missing key reported as present")
	}
}

func TestMemoryCacheRejectsEmptyKey(t *testing.T) {
	c := newTestMemoryCache(t, nil)

	if err := c.Set("", "v", time.Minute); err != types.ErrCacheKeyEmpty {
		t.Fatalf("expected empty key error, got %v", err)
	}
}

func TestMemoryCacheExpiresEntriesLazily(t *testing.T) {
	c := newTestMemoryCache(t, nil)

	if err := c.Set("short", "lived", time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get("short"); ok {
		t.Fatal("expired entry still served")
	}
}

func TestMemoryCacheDeleteAndInvalidate(t *testing.T) {
	c := newTestMemoryCache(t, nil)

	for _, key := range []string{"a", "b", "c"} {
		if err := c.Set(key, key, time.Minute); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}

	if err := c.Delete("a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("deleted entry still present")
	}

	if err := c.Invalidate("b", "c"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	for _, key := range []string{"b", "c"} {
		if _, ok := c.Get(key); ok {
			t.Fatalf("invalidated entry %s still present", key)
		}
	}
}

func TestMemoryCacheEvictsOldestWhenFull(t *testing.T) {
	c := newTestMemoryCache(t, map[string]interface{}{
		"max_entries": 2,
	})

	if err := c.Set("oldest", 1, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(time.Millisecond)
	if err := c.Set("middle", 2, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(time.Millisecond)
	if err := c.Set("newest", 3, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	if _, ok := c.Get("oldest"); ok {
		t.Fatal("oldest entry survived eviction")
	}
	if _, ok := c.Get("middle"); !ok {
		t.Fatal("middle entry evicted")
	}
	if _, ok := c.Get("newest"); !ok {
		t.Fatal("newest entry missing")
	}
}

func TestMemoryCacheLifecycle(t *testing.T) {
	c := newTestMemoryCache(t, map[string]interface{}{
		"cleanup_interval": "10ms",
	})

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !c.IsRunning() {
		t.Fatal("cache not running after start")
	}

	if err := c.Set("k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if c.IsRunning() {
		t.Fatal("cache still running after stop")
	}
	if _, ok := c.Get("k"); ok {
		t.Fatal("entries survived stop")
	}
}

func TestBuildCacheKeyIsStable(t *testing.T) {
	first := buildCacheKey("/reports", []string{"users", "orders"}, map[string]string{
		"tenant": "acme",
		"region": "eu",
	})
	second := buildCacheKey("/reports", []string{"users", "orders"}, map[string]string{
		"region": "eu",
		"tenant": "acme",
	})

	if first != second {
		t.Fatalf("metadata order changed the key: %q vs %q", first, second)
	}

	other := buildCacheKey("/reports", []string{"users"}, nil)
	if first == other {
		t.Fatal("different dependencies produced the same key")
	}
}
