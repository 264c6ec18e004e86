package middleware

import (
	"errors"
	"testing"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-pipeline/types"
)

func buildAuth(t *testing.T, options types.Options) types.Middleware {
	t.Helper()
	if options == nil {
		options = types.Options{}
	}
	if _, ok := options["tokens"]; !ok {
		options["tokens"] = []string{"secret-token"}
	}
	return build(t, Auth(nopLogger(), noopMetrics()), options)
}

func TestAuthRequiresConfiguredTokens(t *testing.T) {
	_, err := Auth(nopLogger(), noopMetrics())(types.Options{})
	if !errors.Is(err, types.ErrMiddlewareRegistration) {
		t.Fatalf("expected registration error without tokens, got %v", err)
	}
}

func TestAuthAcceptsBearerHeader(t *testing.T) {
	unit := buildAuth(t, nil)

	ctx := newTestCtx("GET", "/private")
	ctx.Request.Header.Set(fasthttp.HeaderAuthorization, "Bearer secret-token")

	n := &countingNext{}
	if err := unit.Dispatch(ctx, n.next); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if n.calls != 1 {
		t.Fatal("valid token must reach the continuation")
	}
}

func TestAuthAcceptsQueryParam(t *testing.T) {
	unit := buildAuth(t, nil)

	ctx := newTestCtx("GET", "/private?token=secret-token")

	n := &countingNext{}
	if err := unit.Dispatch(ctx, n.next); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if n.calls != 1 {
		t.Fatal("valid query token must reach the continuation")
	}
}

func TestAuthRejectsMissingAndWrongTokens(t *testing.T) {
	unit := buildAuth(t, nil)

	for _, header := range []string{"", "Bearer wrong"} {
		ctx := newTestCtx("GET", "/private")
		if header != "" {
			ctx.Request.Header.Set(fasthttp.HeaderAuthorization, header)
		}

		n := &countingNext{}
		err := unit.Dispatch(ctx, n.next)
		if !errors.Is(err, types.ErrAuthTokenInvalid) {
			t.Fatalf("header %q: expected auth error, got %v", header, err)
		}
		if n.calls != 0 {
			t.Fatalf("header %q: rejected request reached the continuation", header)
		}
	}
}

func TestAuthSkipsOptionsAndConfiguredPaths(t *testing.T) {
	unit := buildAuth(t, types.Options{
		"skip_paths": []string{"/public"},
	})

	for _, tc := range []struct{ method, path string }{
		{"OPTIONS", "/private"},
		{"GET", "/public"},
	} {
		ctx := newTestCtx(tc.method, tc.path)
		n := &countingNext{}
		if err := unit.Dispatch(ctx, n.next); err != nil {
			t.Fatalf("%s %s: %v", tc.method, tc.path, err)
		}
		if n.calls != 1 {
			t.Fatalf("%s %s: request did not pass through", tc.method, tc.path)
		}
	}
}

func TestAuthFailedHandlerRenders401(t *testing.T) {
	rv, err := AuthFailedHandler(newTestCtx("GET", "/private"), types.ErrAuthTokenInvalid)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	httpErr, ok := rv.(*types.HTTPError)
	if !ok || httpErr.Code != fasthttp.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", rv)
	}
}
