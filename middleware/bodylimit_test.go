package middleware

import (
	"errors"
	"testing"

	"github.com/saiset-co/sai-pipeline/types"
)

func TestBodyLimitRejectsOversizedBodies(t *testing.T) {
	unit := build(t, BodyLimit(nopLogger(), noopMetrics()), types.Options{
		"max_body_size": 8,
	})

	ctx := newTestCtx("POST", "/upload")
	ctx.Request.SetBodyString("well over eight bytes")

	n := &countingNext{}
	err := unit.Dispatch(ctx, n.next)
	if !errors.Is(err, types.ErrBodyTooLarge) {
		t.Fatalf("expected body limit error, got %v", err)
	}
	if n.calls != 0 {
		t.Fatal("rejected request must never reach the continuation")
	}
}

func TestBodyLimitHonorsContentLengthHeader(t *testing.T) {
	unit := build(t, BodyLimit(nopLogger(), noopMetrics()), types.Options{
		"max_body_size": 8,
	})

	ctx := newTestCtx("POST", "/upload")
	ctx.Request.Header.SetContentLength(1024)

	if err := unit.Dispatch(ctx, (&countingNext{}).next); !errors.Is(err, types.ErrBodyTooLarge) {
		t.Fatalf("expected body limit error, got %v", err)
	}
}

func TestBodyLimitPassesSmallBodies(t *testing.T) {
	unit := build(t, BodyLimit(nopLogger(), noopMetrics()), nil)

	ctx := newTestCtx("POST", "/upload")
	ctx.Request.SetBodyString("tiny")

	n := &countingNext{}
	if err := unit.Dispatch(ctx, n.next); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if n.calls != 1 {
		t.Fatalf("continuation called %d times", n.calls)
	}
}
