package host

import (
	"sync"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-pipeline/types"
)

const (
	routeKey      = "sai.host.route"
	paramsKey     = "sai.host.params"
	routingErrKey = "sai.host.routing_error"
	autoOptsKey   = "sai.host.auto_options"
	pushedKey     = "sai.host.pushed"
)

// App is the host application the pipeline is retrofitted onto. It owns the
// route table, view functions, per-scope hook registries, signals, error
// handlers and the request-context lifecycle. All registration happens at
// setup time; request handling only reads.
type App struct {
	config  types.ConfigManager
	logger  types.Logger
	metrics types.MetricsManager

	contract        string
	propagateErrors bool

	mu            sync.RWMutex
	staticRoutes  map[string]*Route
	dynamicRoutes []*Route
	scopes        map[string]*Scope

	urlPreprocessors map[string][]types.URLValuePreprocessor
	beforeHooks      map[string][]types.BeforeRequestHook
	afterHooks       map[string][]types.AfterRequestHook
	errorHandlers    map[string][]*errorHandler

	teardowns       []types.TeardownFunc
	beginFuncs      []types.RequestBeginFunc
	firstRequest    []func() error
	startedSignals  []types.SignalFunc
	finishedSignals []types.SignalFunc
}

func NewApp(config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) (*App, error) {
	hostConfig := config.GetConfig().Host
	if hostConfig == nil {
		return nil, types.ErrConfigIsNil
	}

	app := &App{
		config:           config,
		logger:           logger,
		metrics:          metrics,
		contract:         hostConfig.Contract,
		propagateErrors:  hostConfig.PropagateErrors,
		staticRoutes:     make(map[string]*Route),
		dynamicRoutes:    make([]*Route, 0),
		scopes:           make(map[string]*Scope),
		urlPreprocessors: make(map[string][]types.URLValuePreprocessor),
		beforeHooks:      make(map[string][]types.BeforeRequestHook),
		afterHooks:       make(map[string][]types.AfterRequestHook),
		errorHandlers:    make(map[string][]*errorHandler),
	}

	logger.Info("Host application initialized",
		zap.String("contract", hostConfig.Contract),
		zap.Bool("propagate_errors", hostConfig.PropagateErrors))

	return app, nil
}

func (a *App) ContractVersion() string {
	return a.contract
}

// PushContext establishes the per-request dispatch context: marks the
// request in flight, binds the route and runs the request-begin funcs (the
// earliest extension point).
func (a *App) PushContext(ctx *types.RequestCtx) {
	ctx.SetUserValue(pushedKey, true)

	a.bindRoute(ctx)

	for _, fn := range a.beginFuncs {
		fn(ctx)
	}
}

// PopContext tears the dispatch context down. err is the request's terminal
// error; teardown callbacks receive it and must not fail the pop.
func (a *App) PopContext(ctx *types.RequestCtx, err error) {
	for i := len(a.teardowns) - 1; i >= 0; i-- {
		a.runTeardown(a.teardowns[i], ctx, err)
	}

	ctx.RemoveUserValue(pushedKey)

	result := "ok"
	if err != nil {
		result = "error"
		a.logger.Debug("Request context popped with error",
			zap.Error(err),
			zap.ByteString("path", ctx.Path()))
	}

	if a.metrics != nil {
		a.metrics.Counter("host_requests_total", map[string]string{
			"method": string(ctx.Method()),
			"result": result,
		}).Inc()
	}
}

func (a *App) runTeardown(fn types.TeardownFunc, ctx *types.RequestCtx, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			a.logger.Error("Teardown callback panicked", zap.Any("panic", rec))
		}
	}()
	fn(ctx, err)
}

// ContextSnapshot captures the request's context variables for post-mortem
// inspection by an attached debugger.
func (a *App) ContextSnapshot(ctx *types.RequestCtx) map[string]interface{} {
	snapshot := map[string]interface{}{
		"method": string(ctx.Method()),
		"path":   string(ctx.Path()),
	}

	ctx.VisitUserValues(func(key []byte, value interface{}) {
		snapshot[string(key)] = value
	})

	return snapshot
}

// FullDispatch is the unified dispatch of the newest contract: the host
// runs pre-processing, routing, exception handling, response conversion and
// finalization itself, in one call.
func (a *App) FullDispatch(ctx *types.RequestCtx) error {
	a.NotifyRequestStarted(ctx)

	rv, err := a.preprocess(ctx)
	if err == nil && rv == nil {
		rv, err = a.DispatchRoute(ctx)
	}

	if err != nil {
		rv, err = a.HandleUserException(ctx, err)
		if err != nil {
			return err
		}
	}

	if err := a.MakeResponse(ctx, rv); err != nil {
		return err
	}

	a.finishRequest(ctx)
	return nil
}

// preprocess is the host-private twin of the adapter's pre-processing:
// scope order innermost first, global last, first non-nil hook value wins.
func (a *App) preprocess(ctx *types.RequestCtx) (interface{}, error) {
	scopes := append(a.RouteScopes(ctx), "")
	params := a.RouteParams(ctx)

	for _, scope := range scopes {
		for _, preprocessor := range a.urlPreprocessors[scope] {
			preprocessor(ctx, params)
		}
	}

	for _, scope := range scopes {
		for _, hook := range a.beforeHooks[scope] {
			rv, err := hook(ctx)
			if err != nil {
				return nil, err
			}
			if rv != nil {
				return rv, nil
			}
		}
	}

	return nil, nil
}

func (a *App) finishRequest(ctx *types.RequestCtx) {
	scopes := append(a.RouteScopes(ctx), "")
	for _, scope := range scopes {
		hooks := a.afterHooks[scope]
		for i := len(hooks) - 1; i >= 0; i-- {
			if err := hooks[i](ctx); err != nil {
				a.logger.Error("Response finalizing failed",
					zap.Error(err),
					zap.String("scope", scope))
				return
			}
		}
	}

	a.NotifyRequestFinished(ctx)
}

// Registration surface. Setup time only; not safe to call once traffic is
// flowing.

func (a *App) RegisterURLValuePreprocessor(scope string, fn types.URLValuePreprocessor) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.urlPreprocessors[scope] = append(a.urlPreprocessors[scope], fn)
}

func (a *App) RegisterBeforeRequest(scope string, fn types.BeforeRequestHook) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.beforeHooks[scope] = append(a.beforeHooks[scope], fn)
}

func (a *App) RegisterAfterRequest(scope string, fn types.AfterRequestHook) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.afterHooks[scope] = append(a.afterHooks[scope], fn)
}

func (a *App) RegisterTeardown(fn types.TeardownFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.teardowns = append(a.teardowns, fn)
}

func (a *App) OnFirstRequest(fn func() error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.firstRequest = append(a.firstRequest, fn)
}

func (a *App) OnRequestBegin(fn types.RequestBeginFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.beginFuncs = append(a.beginFuncs, fn)
}

func (a *App) OnRequestStarted(fn types.SignalFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.startedSignals = append(a.startedSignals, fn)
}

func (a *App) OnRequestFinished(fn types.SignalFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finishedSignals = append(a.finishedSignals, fn)
}

// Read surface consumed by the lifecycle adapter.

func (a *App) URLValuePreprocessors(scope string) []types.URLValuePreprocessor {
	return a.urlPreprocessors[scope]
}

func (a *App) BeforeRequestHooks(scope string) []types.BeforeRequestHook {
	return a.beforeHooks[scope]
}

func (a *App) AfterRequestHooks(scope string) []types.AfterRequestHook {
	return a.afterHooks[scope]
}

func (a *App) FirstRequestFuncs() []func() error {
	return a.firstRequest
}

func (a *App) NotifyRequestStarted(ctx *types.RequestCtx) {
	for _, fn := range a.startedSignals {
		fn(ctx)
	}
}

func (a *App) NotifyRequestFinished(ctx *types.RequestCtx) {
	for _, fn := range a.finishedSignals {
		fn(ctx)
	}
}
