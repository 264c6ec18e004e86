package middleware

import (
	"testing"

	"github.com/saiset-co/sai-pipeline/types"
)

func TestMetadataGeneratesRequestID(t *testing.T) {
	unit := build(t, Metadata(nopLogger(), noopMetrics()), nil)

	ctx := newTestCtx("GET", "/data")
	if err := unit.Dispatch(ctx, (&countingNext{}).next); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	requestID, _ := ctx.UserValue(RequestIDKey).(string)
	if requestID == "" {
		t.Fatal("request id not generated")
	}
	if got := string(ctx.Response.Header.Peek("X-Request-ID")); got != requestID {
		t.Fatalf("response header %q does not match user value %q", got, requestID)
	}
}

func TestMetadataKeepsClientRequestID(t *testing.T) {
	unit := build(t, Metadata(nopLogger(), noopMetrics()), nil)

	ctx := newTestCtx("GET", "/data")
	ctx.Request.Header.Set("X-Request-ID", "client-supplied")

	if err := unit.Dispatch(ctx, (&countingNext{}).next); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got, _ := ctx.UserValue(RequestIDKey).(string); got != "client-supplied" {
		t.Fatalf("client request id replaced with %q", got)
	}
}

func TestMetadataPropagatesConfiguredHeaders(t *testing.T) {
	unit := build(t, Metadata(nopLogger(), noopMetrics()), types.Options{
		"propagated_headers": []string{"X-User-ID"},
	})

	ctx := newTestCtx("GET", "/data")
	ctx.Request.Header.Set("X-User-ID", "user-9")
	ctx.Request.Header.Set("X-Trace-ID", "trace-1")

	if err := unit.Dispatch(ctx, (&countingNext{}).next); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got, _ := ctx.UserValue("sai.metadata.X-User-ID").(string); got != "user-9" {
		t.Fatalf("configured header not propagated, got %q", got)
	}
	if ctx.UserValue("sai.metadata.X-Trace-ID") != nil {
		t.Fatal("unconfigured header must not be propagated")
	}
}
