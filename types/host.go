package types

// DebugPreserveKey, when set on a request to a DebugPreserveFunc, asks the
// lifecycle runner to hand a post-mortem snapshot of the request context to
// an attached debugger before the context is popped.
const DebugPreserveKey = "sai.debug.preserve_context"

// URLValuePreprocessor mutates the matched route parameters before any
// before-request hook runs.
type URLValuePreprocessor func(ctx *RequestCtx, params map[string]string)

// BeforeRequestHook runs before chain dispatch. A non-nil value
// short-circuits the remaining hooks and the whole chain and becomes the
// response.
type BeforeRequestHook func(ctx *RequestCtx) (interface{}, error)

// AfterRequestHook post-processes the already-computed response.
type AfterRequestHook func(ctx *RequestCtx) error

// RequestBeginFunc runs at the earliest per-request extension point, right
// after the context is pushed and the route is bound.
type RequestBeginFunc func(ctx *RequestCtx)

// SignalFunc receives request-started and request-finished notifications.
type SignalFunc func(ctx *RequestCtx)

// TeardownFunc runs when the request context is popped. err is the request's
// terminal error, nil when the request finished cleanly or the error was
// classified ignorable.
type TeardownFunc func(ctx *RequestCtx, err error)

// DebugPreserveFunc receives the context snapshot kept for post-mortem
// inspection. Best effort: failures never change the response.
type DebugPreserveFunc func(snapshot map[string]interface{})

// HostApp is everything the pipeline consumes from the host framework. The
// host owns routing, view functions, hook registries, signals and the
// request-context lifecycle; the pipeline borrows them through this surface.
type HostApp interface {
	// ContractVersion reports the host's request-lifecycle contract
	// revision. Read once at startup to select the lifecycle runner,
	// never per request.
	ContractVersion() string

	PushContext(ctx *RequestCtx)
	PopContext(ctx *RequestCtx, err error)
	ContextSnapshot(ctx *RequestCtx) map[string]interface{}

	// ShouldIgnoreError reports whether err must not be recorded as the
	// request's terminal error (e.g. the client went away mid-transfer).
	ShouldIgnoreError(err error) bool

	// HandleUserException applies the registered error handlers. It returns
	// the handler's response-convertible value, or the original error when
	// no handler matches (the caller lets that propagate).
	HandleUserException(ctx *RequestCtx, err error) (interface{}, error)
	// HandleException is the host's top-level exception handler, the last
	// stop before the transport fault boundary.
	HandleException(ctx *RequestCtx, err error) (interface{}, error)

	MakeResponse(ctx *RequestCtx, rv interface{}) error
	// DispatchRoute resolves and invokes the matched view: raises the
	// pending routing error, answers automatic OPTIONS, calls the view.
	DispatchRoute(ctx *RequestCtx) (interface{}, error)
	// FullDispatch is the unified dispatch of the newest host contract:
	// pre-processing, routing, response conversion and finalization in a
	// single host-owned call.
	FullDispatch(ctx *RequestCtx) error

	// RouteScopes lists the matched route's registration scopes, most
	// specific first, excluding the global scope.
	RouteScopes(ctx *RequestCtx) []string
	RouteParams(ctx *RequestCtx) map[string]string
	URLValuePreprocessors(scope string) []URLValuePreprocessor
	BeforeRequestHooks(scope string) []BeforeRequestHook
	AfterRequestHooks(scope string) []AfterRequestHook
	FirstRequestFuncs() []func() error

	OnRequestBegin(fn RequestBeginFunc)
	NotifyRequestStarted(ctx *RequestCtx)
	NotifyRequestFinished(ctx *RequestCtx)
}
