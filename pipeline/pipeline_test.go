package pipeline

import (
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-pipeline/host"
	"github.com/saiset-co/sai-pipeline/logger"
	"github.com/saiset-co/sai-pipeline/metrics"
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

func newTestApp(t interface{ Fatalf(string, ...interface{}) }) *host.App {
	config := &configStub{cfg: &types.ServiceConfig{
		Name:    "test",
		Version: "1.0.0",
		Host:    &types.HostConfig{Contract: "2"},
	}}

	app, err := host.NewApp(config, logger.NewZapWrapper(zap.NewNop()), metrics.NewNoopMetrics())
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	return app
}

func newTestCtx(method, path string) *types.RequestCtx {
	fctx := &fasthttp.RequestCtx{}
	fctx.Request.Header.SetMethod(method)
	fctx.Request.SetRequestURI(path)
	return types.WrapRequestCtx(fctx)
}

type testUnit struct {
	name string
	fn   func(ctx *types.RequestCtx, next types.Next) error
}

func (u *testUnit) Name() string { return u.name }

func (u *testUnit) Dispatch(ctx *types.RequestCtx, next types.Next) error {
	return u.fn(ctx, next)
}

func unitFactory(unit types.Middleware) types.MiddlewareFactory {
	return func(options types.Options) (types.Middleware, error) {
		return unit, nil
	}
}
