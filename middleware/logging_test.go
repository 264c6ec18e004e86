package middleware

import (
	"errors"
	"testing"

	"github.com/saiset-co/sai-pipeline/types"
)

func TestLoggingPassesResultsThrough(t *testing.T) {
	unit := build(t, Logging(nopLogger(), noopMetrics()), nil)

	n := &countingNext{fn: func(ctx *types.RequestCtx) error {
		ctx.Response.SetStatusCode(201)
		return nil
	}}

	ctx := newTestCtx("POST", "/things")
	if err := unit.Dispatch(ctx, n.next); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if n.calls != 1 {
		t.Fatalf("continuation called %d times", n.calls)
	}
	if ctx.Response.StatusCode() != 201 {
		t.Fatalf("status altered to %d", ctx.Response.StatusCode())
	}
}

func TestLoggingForwardsErrors(t *testing.T) {
	unit := build(t, Logging(nopLogger(), noopMetrics()), nil)

	boom := errors.New("inner failure")
	err := unit.Dispatch(newTestCtx("GET", "/fail"), func(ctx *types.RequestCtx) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected inner error, got %v", err)
	}
}
