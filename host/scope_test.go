package host

import (
	"errors"
	"testing"

	"github.com/saiset-co/sai-pipeline/types"
)

func TestScopePrefixesRoutes(t *testing.T) {
	app := newTestApp(t, nil)

	api, err := app.NewScope("api", "/api/v1")
	if err != nil {
		t.Fatalf("scope: %v", err)
	}

	if err := api.GET("/users", func(ctx *types.RequestCtx) (interface{}, error) {
		return "users", nil
	}); err != nil {
		t.Fatalf("route: %v", err)
	}

	ctx := newTestCtx("GET", "/api/v1/users")
	app.PushContext(ctx)

	rv, err := app.DispatchRoute(ctx)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if rv != "users" {
		t.Fatalf("unexpected view result %v", rv)
	}
}

func TestNestedScopesStackPrefixesAndChainInnermostFirst(t *testing.T) {
	app := newTestApp(t, nil)

	api, err := app.NewScope("api", "/api")
	if err != nil {
		t.Fatalf("scope: %v", err)
	}
	admin, err := api.NewScope("admin", "/admin")
	if err != nil {
		t.Fatalf("scope: %v", err)
	}

	if err := admin.GET("/stats", func(ctx *types.RequestCtx) (interface{}, error) {
		return nil, nil
	}); err != nil {
		t.Fatalf("route: %v", err)
	}

	ctx := newTestCtx("GET", "/api/admin/stats")
	app.PushContext(ctx)

	scopes := app.RouteScopes(ctx)
	if len(scopes) != 2 || scopes[0] != "admin" || scopes[1] != "api" {
		t.Fatalf("expected [admin api], got %v", scopes)
	}
}

func TestScopeNamesMustBeUniqueAndNonEmpty(t *testing.T) {
	app := newTestApp(t, nil)

	if _, err := app.NewScope("", "/x"); !errors.Is(err, types.ErrScopeNameIsEmpty) {
		t.Fatalf("expected empty name error, got %v", err)
	}

	if _, err := app.NewScope("api", "/api"); err != nil {
		t.Fatalf("scope: %v", err)
	}
	if _, err := app.NewScope("api", "/other"); !errors.Is(err, types.ErrScopeAlreadyExists) {
		t.Fatalf("expected duplicate scope error, got %v", err)
	}
}

func TestScopeRegistersHooksUnderItsName(t *testing.T) {
	app := newTestApp(t, nil)

	api, err := app.NewScope("api", "/api")
	if err != nil {
		t.Fatalf("scope: %v", err)
	}

	api.BeforeRequest(func(ctx *types.RequestCtx) (interface{}, error) {
		return nil, nil
	})
	api.AfterRequest(func(ctx *types.RequestCtx) error {
		return nil
	})

	if len(app.BeforeRequestHooks("api")) != 1 {
		t.Fatal("before hook not registered under scope name")
	}
	if len(app.AfterRequestHooks("api")) != 1 {
		t.Fatal("after hook not registered under scope name")
	}
	if len(app.BeforeRequestHooks("")) != 0 {
		t.Fatal("scoped hook leaked into the global scope")
	}
}
