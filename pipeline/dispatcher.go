package pipeline

import (
	"runtime"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-pipeline/types"
	"github.com/saiset-co/sai-pipeline/utils"
)

// Dispatcher walks the per-request stack. Each step removes the tail unit,
// invokes it with the dispatcher itself as the continuation and restores the
// unit afterwards, which keeps the stack self-healing across nested or
// repeated continuation calls. An empty stack means the chain is exhausted
// and the terminal route handler runs.
type Dispatcher struct {
	host     types.HostApp
	registry *Registry
	bridge   *Bridge
	logger   types.Logger
	metrics  types.MetricsManager
}

func NewDispatcher(host types.HostApp, registry *Registry, bridge *Bridge, logger types.Logger, metrics types.MetricsManager) *Dispatcher {
	d := &Dispatcher{
		host:     host,
		registry: registry,
		bridge:   bridge,
		logger:   logger,
		metrics:  metrics,
	}

	// Earliest per-request extension point: snapshot the registry into a
	// request-scoped stack as soon as the context is pushed.
	host.OnRequestBegin(d.buildStack)

	return d
}

func (d *Dispatcher) buildStack(ctx *types.RequestCtx) {
	AttachStack(ctx, newRequestStack(d.registry.Snapshot()))
}

// Dispatch threads the request through the next unit on the stack, or runs
// the terminal handler when the stack is empty. Errors are absorbed one
// level at a time: whatever a unit or the terminal handler raises is handed
// to the Bridge here, so outer units only ever observe the Bridge's
// response. The returned error is non-nil only when the Bridge re-raised.
func (d *Dispatcher) Dispatch(ctx *types.RequestCtx) error {
	stack := StackFromRequest(ctx)

	if stack != nil && stack.Depth() > 0 {
		unit := stack.pop()
		defer stack.push(unit)

		if err := d.invoke(unit, ctx); err != nil {
			return d.bridge.Resolve(ctx, err)
		}
		return nil
	}

	rv, err := d.host.DispatchRoute(ctx)
	if err != nil {
		return d.bridge.Resolve(ctx, err)
	}

	if err := d.host.MakeResponse(ctx, rv); err != nil {
		return d.bridge.Resolve(ctx, err)
	}
	return nil
}

// invoke runs one unit with panic containment: a panicking unit is treated
// like a unit that returned an error.
func (d *Dispatcher) invoke(unit types.Middleware, ctx *types.RequestCtx) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)

			d.logger.Error("Middleware panicked",
				zap.String("middleware", unit.Name()),
				zap.Any("panic", rec),
				zap.String("stack", utils.BytesToString(buf[:n])))

			if d.metrics != nil {
				d.metrics.Counter("pipeline_panics_total", map[string]string{
					"middleware": unit.Name(),
				}).Inc()
			}

			err = types.Errorf(types.ErrMiddlewarePanic, "%s: %v", unit.Name(), rec)
		}
	}()

	return unit.Dispatch(ctx, d.Dispatch)
}
