package middleware

import (
	"testing"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-pipeline/logger"
	"github.com/saiset-co/sai-pipeline/metrics"
	"github.com/saiset-co/sai-pipeline/types"
)

func newTestCtx(method, path string) *types.RequestCtx {
	fctx := &fasthttp.RequestCtx{}
	fctx.Request.Header.SetMethod(method)
	fctx.Request.SetRequestURI(path)
	return types.WrapRequestCtx(fctx)
}

func build(t *testing.T, factory types.MiddlewareFactory, options types.Options) types.Middleware {
	t.Helper()
	unit, err := factory(options)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	return unit
}

func nopLogger() types.Logger { return logger.NewZapWrapper(zap.NewNop()) }

func noopMetrics() types.MetricsManager { return metrics.NewNoopMetrics() }

// countingNext records continuation calls and lets tests script the inner
// chain's behavior.
type countingNext struct {
	calls int
	fn    func(ctx *types.RequestCtx) error
}

func (n *countingNext) next(ctx *types.RequestCtx) error {
	n.calls++
	if n.fn != nil {
		return n.fn(ctx)
	}
	return nil
}
