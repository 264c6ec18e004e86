package lifecycle

import (
	"errors"
	"testing"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-pipeline/host"
	"github.com/saiset-co/sai-pipeline/logger"
	"github.com/saiset-co/sai-pipeline/metrics"
	"github.com/saiset-co/sai-pipeline/pipeline"
	"github.com/saiset-co/sai-pipeline/types"
)

type configStub struct {
	cfg *types.ServiceConfig
}

func (c *configStub) Load() error { return nil }

func (c *configStub) GetConfig() *types.ServiceConfig { return c.cfg }

func (c *configStub) GetValue(path string, defaultValue interface{}) interface{} {
	return defaultValue
}

func (c *configStub) GetAs(path string, target interface{}) error { return nil }

type fixture struct {
	app      *host.App
	registry *pipeline.Registry
	runner   Runner
}

func newFixture(t *testing.T, contract string, propagate bool) *fixture {
	t.Helper()

	config := &configStub{cfg: &types.ServiceConfig{
		Name:    "test",
		Version: "1.0.0",
		Host:    &types.HostConfig{Contract: contract, PropagateErrors: propagate},
	}}

	log := logger.NewZapWrapper(zap.NewNop())
	noop := metrics.NewNoopMetrics()

	app, err := host.NewApp(config, log, noop)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}

	registry := pipeline.NewRegistry(log)
	bridge := pipeline.NewBridge(app, log)
	dispatcher := pipeline.NewDispatcher(app, registry, bridge, log, noop)

	return &fixture{
		app:      app,
		registry: registry,
		runner:   NewRunner(app, dispatcher, bridge, log, noop),
	}
}

func newTestCtx(method, path string) *types.RequestCtx {
	fctx := &fasthttp.RequestCtx{}
	fctx.Request.Header.SetMethod(method)
	fctx.Request.SetRequestURI(path)
	return types.WrapRequestCtx(fctx)
}

type namedUnit struct {
	name string
	fn   func(ctx *types.RequestCtx, next types.Next) error
}

func (u *namedUnit) Name() string { return u.name }

func (u *namedUnit) Dispatch(ctx *types.RequestCtx, next types.Next) error {
	return u.fn(ctx, next)
}

func register(t *testing.T, registry *pipeline.Registry, unit types.Middleware) {
	t.Helper()
	factory := func(options types.Options) (types.Middleware, error) { return unit, nil }
	if err := registry.Register(factory, nil); err != nil {
		t.Fatalf("register %s: %v", unit.Name(), err)
	}
}

func TestNewRunnerSelectsContractVariant(t *testing.T) {
	cases := []struct {
		contract  string
		unified   bool
		withGuard bool
	}{
		{"3.1.2", true, false},
		{"2.0.1", false, true},
		{"1.1.4", false, false},
		{"0.12.5", false, false},
		{"garbage", false, false},
	}

	for _, tc := range cases {
		runner := newFixture(t, tc.contract, false).runner

		if tc.unified {
			if _, ok := runner.(*unifiedRunner); !ok {
				t.Fatalf("contract %s: expected unified runner, got %T", tc.contract, runner)
			}
			continue
		}

		legacy, ok := runner.(*legacyRunner)
		if !ok {
			t.Fatalf("contract %s: expected legacy runner, got %T", tc.contract, runner)
		}
		if legacy.guardFirstRequest != tc.withGuard {
			t.Fatalf("contract %s: guard = %v, want %v", tc.contract, legacy.guardFirstRequest, tc.withGuard)
		}
	}
}

func TestLegacyServeHappyPath(t *testing.T) {
	f := newFixture(t, "2", false)

	if err := f.app.GET("/greet/:name", func(ctx *types.RequestCtx) (interface{}, error) {
		return map[string]string{"greeting": f.app.RouteParams(ctx)["name"]}, nil
	}); err != nil {
		t.Fatalf("route: %v", err)
	}

	ctx := newTestCtx("GET", "/greet/ada")
	if err := f.runner.Serve(ctx); err != nil {
		t.Fatalf("serve: %v", err)
	}

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("expected 200, got %d", ctx.Response.StatusCode())
	}
	body := string(ctx.Response.Body())
	if body != `{"greeting":"ada"}` {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestLegacyServeRunsFirstRequestFuncsOnce(t *testing.T) {
	f := newFixture(t, "2", false)

	runs := 0
	f.app.OnFirstRequest(func() error {
		runs++
		return nil
	})

	if err := f.app.GET("/ping", func(ctx *types.RequestCtx) (interface{}, error) {
		return "pong", nil
	}); err != nil {
		t.Fatalf("route: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := f.runner.Serve(newTestCtx("GET", "/ping")); err != nil {
			t.Fatalf("serve %d: %v", i, err)
		}
	}

	if runs != 1 {
		t.Fatalf("first-request funcs ran %d times, want 1", runs)
	}
}

func TestOldestContractSkipsFirstRequestFuncs(t *testing.T) {
	f := newFixture(t, "1", false)

	runs := 0
	f.app.OnFirstRequest(func() error {
		runs++
		return nil
	})

	if err := f.app.GET("/ping", func(ctx *types.RequestCtx) (interface{}, error) {
		return "pong", nil
	}); err != nil {
		t.Fatalf("route: %v", err)
	}

	if err := f.runner.Serve(newTestCtx("GET", "/ping")); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if runs != 0 {
		t.Fatalf("first-request funcs must not run under the oldest contract, ran %d times", runs)
	}
}

func TestLegacyServeBeforeHookShortCircuitsChain(t *testing.T) {
	f := newFixture(t, "2", false)

	viewCalled := false
	if err := f.app.GET("/ping", func(ctx *types.RequestCtx) (interface{}, error) {
		viewCalled = true
		return "pong", nil
	}); err != nil {
		t.Fatalf("route: %v", err)
	}

	unitCalled := false
	register(t, f.registry, &namedUnit{name: "probe", fn: func(ctx *types.RequestCtx, next types.Next) error {
		unitCalled = true
		return next(ctx)
	}})

	f.app.RegisterBeforeRequest("", func(ctx *types.RequestCtx) (interface{}, error) {
		return "maintenance", nil
	})

	ctx := newTestCtx("GET", "/ping")
	if err := f.runner.Serve(ctx); err != nil {
		t.Fatalf("serve: %v", err)
	}

	if viewCalled || unitCalled {
		t.Fatalf("short-circuit leaked: view=%v unit=%v", viewCalled, unitCalled)
	}
	if got := string(ctx.Response.Body()); got != "maintenance" {
		t.Fatalf("expected maintenance, got %q", got)
	}
}

func TestLegacyServeRendersGenericFaultForUnhandledErrors(t *testing.T) {
	f := newFixture(t, "2", false)

	if err := f.app.GET("/ping", func(ctx *types.RequestCtx) (interface{}, error) {
		return nil, errors.New("database exploded")
	}); err != nil {
		t.Fatalf("route: %v", err)
	}

	ctx := newTestCtx("GET", "/ping")
	if err := f.runner.Serve(ctx); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if ctx.Response.StatusCode() != fasthttp.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", ctx.Response.StatusCode())
	}
}

func TestLegacyServePropagatesWhenConfigured(t *testing.T) {
	f := newFixture(t, "2", true)

	boom := errors.New("database exploded")
	if err := f.app.GET("/ping", func(ctx *types.RequestCtx) (interface{}, error) {
		return nil, boom
	}); err != nil {
		t.Fatalf("route: %v", err)
	}

	if err := f.runner.Serve(newTestCtx("GET", "/ping")); !errors.Is(err, boom) {
		t.Fatalf("expected error propagation, got %v", err)
	}
}

func TestLegacyServeSuppressesIgnorableErrorsAtTeardown(t *testing.T) {
	f := newFixture(t, "2", true)

	if err := f.app.GET("/ping", func(ctx *types.RequestCtx) (interface{}, error) {
		return nil, types.Errorf(types.ErrRequestAborted, "client went away")
	}); err != nil {
		t.Fatalf("route: %v", err)
	}

	teardownRan := false
	var teardownErr error
	f.app.RegisterTeardown(func(ctx *types.RequestCtx, err error) {
		teardownRan = true
		teardownErr = err
	})

	// The error still propagates to the caller; only the torn-down context
	// treats it as a clean finish.
	if err := f.runner.Serve(newTestCtx("GET", "/ping")); !errors.Is(err, types.ErrRequestAborted) {
		t.Fatalf("expected aborted error to reach the boundary, got %v", err)
	}
	if !teardownRan {
		t.Fatal("teardown did not run")
	}
	if teardownErr != nil {
		t.Fatalf("teardown must see a nil error for ignorable failures, got %v", teardownErr)
	}
}

func TestLegacyServeRunsAfterHooksInReverse(t *testing.T) {
	f := newFixture(t, "2", false)

	if err := f.app.GET("/ping", func(ctx *types.RequestCtx) (interface{}, error) {
		return "pong", nil
	}); err != nil {
		t.Fatalf("route: %v", err)
	}

	var order []string
	f.app.RegisterAfterRequest("", func(ctx *types.RequestCtx) error {
		order = append(order, "first")
		return nil
	})
	f.app.RegisterAfterRequest("", func(ctx *types.RequestCtx) error {
		order = append(order, "second")
		return nil
	})

	if err := f.runner.Serve(newTestCtx("GET", "/ping")); err != nil {
		t.Fatalf("serve: %v", err)
	}

	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Fatalf("after hooks must run in reverse registration order, got %v", order)
	}
}

func TestUnifiedServeBypassesChain(t *testing.T) {
	f := newFixture(t, "3", false)

	if err := f.app.GET("/ping", func(ctx *types.RequestCtx) (interface{}, error) {
		return "pong", nil
	}); err != nil {
		t.Fatalf("route: %v", err)
	}

	unitCalled := false
	register(t, f.registry, &namedUnit{name: "probe", fn: func(ctx *types.RequestCtx, next types.Next) error {
		unitCalled = true
		return next(ctx)
	}})

	ctx := newTestCtx("GET", "/ping")
	if err := f.runner.Serve(ctx); err != nil {
		t.Fatalf("serve: %v", err)
	}

	if unitCalled {
		t.Fatal("unified contract must not walk the interceptor chain")
	}
	if got := string(ctx.Response.Body()); got != "pong" {
		t.Fatalf("expected pong, got %q", got)
	}
}

func TestServeHandsSnapshotToDebugHook(t *testing.T) {
	f := newFixture(t, "2", false)

	if err := f.app.GET("/ping", func(ctx *types.RequestCtx) (interface{}, error) {
		return "pong", nil
	}); err != nil {
		t.Fatalf("route: %v", err)
	}

	var snapshot map[string]interface{}
	ctx := newTestCtx("GET", "/ping")
	ctx.SetUserValue(types.DebugPreserveKey, types.DebugPreserveFunc(func(s map[string]interface{}) {
		snapshot = s
	}))

	if err := f.runner.Serve(ctx); err != nil {
		t.Fatalf("serve: %v", err)
	}

	if snapshot == nil {
		t.Fatal("debug hook did not receive a snapshot")
	}
	if snapshot["path"] != "/ping" {
		t.Fatalf("snapshot path = %v, want /ping", snapshot["path"])
	}
}
