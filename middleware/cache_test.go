package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/saiset-co/sai-pipeline/cache"
	"github.com/saiset-co/sai-pipeline/types"
)

func newMemoryCache(t *testing.T) types.CacheManager {
	t.Helper()

	manager, err := cache.NewMemoryCache(context.Background(), nopLogger(), &types.CacheConfig{
		Enabled: true,
		Type:    "memory",
	})
	if err != nil {
		t.Fatalf("memory cache: %v", err)
	}
	return manager
}

func TestCacheRequiresManager(t *testing.T) {
	_, err := Cache(nil, nopLogger(), noopMetrics())(nil)
	if !errors.Is(err, types.ErrCacheIsDisabled) {
		t.Fatalf("expected disabled cache error, got %v", err)
	}
}

func TestCacheServesRepeatGETsFromStore(t *testing.T) {
	unit := build(t, Cache(newMemoryCache(t), nopLogger(), noopMetrics()), nil)

	n := &countingNext{fn: func(ctx *types.RequestCtx) error {
		ctx.Response.SetStatusCode(200)
		ctx.Response.Header.SetContentType("application/json")
		ctx.Response.SetBodyString(`{"fresh":true}`)
		return nil
	}}

	first := newTestCtx("GET", "/report")
	if err := unit.Dispatch(first, n.next); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	if n.calls != 1 {
		t.Fatalf("miss must reach the continuation, calls=%d", n.calls)
	}

	second := newTestCtx("GET", "/report")
	if err := unit.Dispatch(second, n.next); err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if n.calls != 1 {
		t.Fatalf("hit must skip the continuation, calls=%d", n.calls)
	}
	if got := string(second.Response.Header.Peek("X-Cache")); got != "HIT" {
		t.Fatalf("expected X-Cache HIT, got %q", got)
	}
	if got := string(second.Response.Body()); got != `{"fresh":true}` {
		t.Fatalf("unexpected cached body %q", got)
	}
}

func TestCacheIgnoresNonGETRequests(t *testing.T) {
	unit := build(t, Cache(newMemoryCache(t), nopLogger(), noopMetrics()), nil)

	n := &countingNext{fn: func(ctx *types.RequestCtx) error {
		ctx.Response.SetStatusCode(200)
		ctx.Response.SetBodyString("written")
		return nil
	}}

	for i := 0; i < 2; i++ {
		ctx := newTestCtx("POST", "/report")
		if err := unit.Dispatch(ctx, n.next); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}
	if n.calls != 2 {
		t.Fatalf("POST requests must never be served from cache, calls=%d", n.calls)
	}
}

func TestCacheSkipsNon200Responses(t *testing.T) {
	unit := build(t, Cache(newMemoryCache(t), nopLogger(), noopMetrics()), nil)

	n := &countingNext{fn: func(ctx *types.RequestCtx) error {
		ctx.Response.SetStatusCode(500)
		ctx.Response.SetBodyString("broken")
		return nil
	}}

	for i := 0; i < 2; i++ {
		ctx := newTestCtx("GET", "/flaky")
		if err := unit.Dispatch(ctx, n.next); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}
	if n.calls != 2 {
		t.Fatalf("error responses must not be cached, calls=%d", n.calls)
	}
}

func TestCacheSkipsConfiguredPaths(t *testing.T) {
	unit := build(t, Cache(newMemoryCache(t), nopLogger(), noopMetrics()), types.Options{
		"skip_paths": []string{"/live"},
	})

	n := &countingNext{fn: func(ctx *types.RequestCtx) error {
		ctx.Response.SetStatusCode(200)
		ctx.Response.SetBodyString("now")
		return nil
	}}

	for i := 0; i < 2; i++ {
		ctx := newTestCtx("GET", "/live")
		if err := unit.Dispatch(ctx, n.next); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}
	if n.calls != 2 {
		t.Fatalf("skip path served from cache, calls=%d", n.calls)
	}
}
