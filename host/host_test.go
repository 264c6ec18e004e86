package host

import (
	"testing"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

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

func newTestApp(t *testing.T, host *types.HostConfig) *App {
	t.Helper()

	if host == nil {
		host = &types.HostConfig{Contract: "2"}
	}
	config := &configStub{cfg: &types.ServiceConfig{
		Name:    "test",
		Version: "1.0.0",
		Host:    host,
	}}

	app, err := NewApp(config, logger.NewZapWrapper(zap.NewNop()), metrics.NewNoopMetrics())
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
