package middleware

import (
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-pipeline/types"
	"github.com/saiset-co/sai-pipeline/utils"
)

type RecoveryConfig struct {
	StackTrace bool `json:"stack_trace"`
}

// RecoveryMiddleware absorbs panics raised anywhere below it in the chain
// and answers with a generic 500. Register it first so it wraps everything.
type RecoveryMiddleware struct {
	logger         types.Logger
	metrics        types.MetricsManager
	recoveryConfig *RecoveryConfig
	stackBufPool   sync.Pool
	panicLabels    map[string]string
}

func Recovery(logger types.Logger, metrics types.MetricsManager) types.MiddlewareFactory {
	return func(options types.Options) (types.Middleware, error) {
		recoveryConfig := &RecoveryConfig{
			StackTrace: true,
		}

		if options != nil {
			if err := utils.UnmarshalConfig(map[string]interface{}(options), recoveryConfig); err != nil {
				return nil, types.WrapError(err, "recovery middleware options")
			}
		}

		return &RecoveryMiddleware{
			logger:         logger,
			metrics:        metrics,
			recoveryConfig: recoveryConfig,
			stackBufPool: sync.Pool{
				New: func() interface{} {
					return make([]byte, 4096)
				},
			},
			panicLabels: map[string]string{
				"middleware": "recovery",
			},
		}, nil
	}
}

func (r *RecoveryMiddleware) Name() string { return "recovery" }

func (r *RecoveryMiddleware) Dispatch(ctx *types.RequestCtx, next types.Next) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			fields := []zap.Field{
				zap.Any("panic", rec),
				zap.ByteString("method", ctx.Method()),
				zap.ByteString("path", ctx.Path()),
			}
			if r.recoveryConfig.StackTrace {
				r.logger.ErrorWithStack("Panic recovered", r.getStackTrace(), fields...)
			} else {
				r.logger.Error("Panic recovered", fields...)
			}

			if r.metrics != nil {
				r.metrics.Counter("middleware_panics_total", r.panicLabels).Inc()
			}

			ctx.Response.Reset()
			utils.CreateErrorResponse(ctx.RequestCtx)
			err = nil
		}
	}()

	return next(ctx)
}

func (r *RecoveryMiddleware) getStackTrace() string {
	buf := r.stackBufPool.Get().([]byte)
	defer r.stackBufPool.Put(buf)

	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
