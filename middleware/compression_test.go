package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"strings"
	"testing"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-pipeline/types"
)

func jsonNext(body string) *countingNext {
	return &countingNext{fn: func(ctx *types.RequestCtx) error {
		ctx.Response.Header.SetContentType("application/json")
		ctx.Response.SetBodyString(body)
		return nil
	}}
}

func TestCompressionCompressesLargeJSONResponses(t *testing.T) {
	unit := build(t, Compression(nopLogger(), noopMetrics()), types.Options{
		"threshold": 64,
	})

	payload := `{"data":"` + strings.Repeat("abcdefgh", 64) + `"}`

	ctx := newTestCtx("GET", "/data")
	ctx.Request.Header.Set(fasthttp.HeaderAcceptEncoding, "gzip")

	if err := unit.Dispatch(ctx, jsonNext(payload).next); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if got := string(ctx.Response.Header.ContentEncoding()); got != "gzip" {
		t.Fatalf("expected gzip encoding, got %q", got)
	}

	reader, err := gzip.NewReader(bytes.NewReader(ctx.Response.Body()))
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	decompressed, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(decompressed) != payload {
		t.Fatal("round trip does not match the original body")
	}
}

func TestCompressionPrefersBrotli(t *testing.T) {
	unit := build(t, Compression(nopLogger(), noopMetrics()), types.Options{
		"threshold": 64,
	})

	ctx := newTestCtx("GET", "/data")
	ctx.Request.Header.Set(fasthttp.HeaderAcceptEncoding, "gzip, deflate, br")

	payload := `{"data":"` + strings.Repeat("abcdefgh", 64) + `"}`
	if err := unit.Dispatch(ctx, jsonNext(payload).next); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := string(ctx.Response.Header.ContentEncoding()); got != "br" {
		t.Fatalf("expected brotli, got %q", got)
	}
}

func TestCompressionSkipsSmallBodies(t *testing.T) {
	unit := build(t, Compression(nopLogger(), noopMetrics()), nil)

	ctx := newTestCtx("GET", "/data")
	ctx.Request.Header.Set(fasthttp.HeaderAcceptEncoding, "gzip")

	if err := unit.Dispatch(ctx, jsonNext(`{"ok":true}`).next); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(ctx.Response.Header.ContentEncoding()) != 0 {
		t.Fatal("small body must not be compressed")
	}
}

func TestCompressionSkipsDisallowedContentTypes(t *testing.T) {
	unit := build(t, Compression(nopLogger(), noopMetrics()), types.Options{
		"threshold": 16,
	})

	ctx := newTestCtx("GET", "/image")
	ctx.Request.Header.Set(fasthttp.HeaderAcceptEncoding, "gzip")

	n := &countingNext{fn: func(ctx *types.RequestCtx) error {
		ctx.Response.Header.SetContentType("image/png")
		ctx.Response.SetBodyString(strings.Repeat("x", 1024))
		return nil
	}}
	if err := unit.Dispatch(ctx, n.next); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(ctx.Response.Header.ContentEncoding()) != 0 {
		t.Fatal("disallowed content type must not be compressed")
	}
}

func TestCompressionSkipsWithoutAcceptEncoding(t *testing.T) {
	unit := build(t, Compression(nopLogger(), noopMetrics()), types.Options{
		"threshold": 16,
	})

	ctx := newTestCtx("GET", "/data")

	if err := unit.Dispatch(ctx, jsonNext(strings.Repeat("a", 1024)).next); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(ctx.Response.Header.ContentEncoding()) != 0 {
		t.Fatal("response compressed without client support")
	}
}

func TestCompressionRejectsInvalidLevel(t *testing.T) {
	_, err := Compression(nopLogger(), noopMetrics())(types.Options{"level": 42})
	if err == nil {
		t.Fatal("expected invalid level to fail registration")
	}
}
