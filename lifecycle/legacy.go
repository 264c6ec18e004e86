package lifecycle

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-pipeline/pipeline"
	"github.com/saiset-co/sai-pipeline/types"
)

// legacyRunner re-implements the request sequence of the 1.x and 2.x host
// contracts: context push, optional guarded first-request setup, started
// signal, pre-processing, chain dispatch, finalization, exception handling,
// context pop with ignorable-error suppression.
type legacyRunner struct {
	host       types.HostApp
	dispatcher *pipeline.Dispatcher
	bridge     *pipeline.Bridge
	logger     types.Logger
	metrics    types.MetricsManager

	guardFirstRequest bool
	firstRequest      sync.Once
}

func newLegacyRunner(host types.HostApp, dispatcher *pipeline.Dispatcher, bridge *pipeline.Bridge, logger types.Logger, metrics types.MetricsManager, guardFirstRequest bool) *legacyRunner {
	return &legacyRunner{
		host:              host,
		dispatcher:        dispatcher,
		bridge:            bridge,
		logger:            logger,
		metrics:           metrics,
		guardFirstRequest: guardFirstRequest,
	}
}

func (r *legacyRunner) Serve(ctx *types.RequestCtx) error {
	start := time.Now()

	r.host.PushContext(ctx)

	var reqErr error
	defer func() {
		preserveDebugContext(r.host, ctx, r.logger)

		if reqErr != nil && r.host.ShouldIgnoreError(reqErr) {
			reqErr = nil
		}
		r.host.PopContext(ctx, reqErr)

		if r.metrics != nil {
			r.metrics.Histogram("lifecycle_request_duration_seconds",
				[]float64{0.001, 0.01, 0.1, 1.0, 10.0},
				map[string]string{"contract": "legacy"},
			).ObserveDuration(start)
		}
	}()

	if r.guardFirstRequest {
		if err := r.runFirstRequestFuncs(); err != nil {
			reqErr = err
			return r.renderTopLevel(ctx, err)
		}
	}

	if err := r.handle(ctx); err != nil {
		reqErr = err
		return r.renderTopLevel(ctx, err)
	}

	return nil
}

// handle is the protected region: everything it raises is first offered to
// the user-exception facility; only an unhandled error escapes to the
// caller's top-level handler.
func (r *legacyRunner) handle(ctx *types.RequestCtx) error {
	err := r.produceResponse(ctx)
	if err != nil {
		return err
	}

	r.finalize(ctx)
	return nil
}

// produceResponse runs the started signal, pre-processing and the chain. A
// pre-processing short-circuit value becomes the response without touching
// the chain.
func (r *legacyRunner) produceResponse(ctx *types.RequestCtx) error {
	r.host.NotifyRequestStarted(ctx)

	rv, err := Preprocess(r.host, ctx)
	if err != nil {
		return r.bridge.Resolve(ctx, err)
	}

	if rv != nil {
		if merr := r.host.MakeResponse(ctx, rv); merr != nil {
			return r.bridge.Resolve(ctx, merr)
		}
		return nil
	}

	return r.dispatcher.Dispatch(ctx)
}

// finalize runs response post-processing and the finished signal. Finishing
// must not itself fail the request: any error here is logged and the
// already-computed response stands.
func (r *legacyRunner) finalize(ctx *types.RequestCtx) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Request finalizing failed with an error while handling an error",
				zap.Any("panic", rec),
				zap.ByteString("path", ctx.Path()))
		}
	}()

	scopes := append(r.host.RouteScopes(ctx), "")
	for _, scope := range scopes {
		hooks := r.host.AfterRequestHooks(scope)
		for i := len(hooks) - 1; i >= 0; i-- {
			if err := hooks[i](ctx); err != nil {
				r.logger.Error("Request finalizing failed with an error while handling an error",
					zap.Error(err),
					zap.String("scope", scope),
					zap.ByteString("path", ctx.Path()))
				return
			}
		}
	}

	r.host.NotifyRequestFinished(ctx)
}

// renderTopLevel delegates to the host's top-level exception handler. When
// even that re-raises, the error is returned to the transport fault
// boundary; the deferred pop has already been armed with it.
func (r *legacyRunner) renderTopLevel(ctx *types.RequestCtx, err error) error {
	rv, herr := r.host.HandleException(ctx, err)
	if herr != nil {
		return herr
	}

	if merr := r.host.MakeResponse(ctx, rv); merr != nil {
		return merr
	}
	return nil
}

func (r *legacyRunner) runFirstRequestFuncs() error {
	var firstErr error
	r.firstRequest.Do(func() {
		for _, fn := range r.host.FirstRequestFuncs() {
			if err := fn(); err != nil {
				firstErr = err
				return
			}
		}
	})
	return firstErr
}
