package types

// Next is the continuation handed to a middleware unit: it represents the
// remainder of the pipeline, the not-yet-executed units followed by the
// terminal route handler. A unit may call it zero, one, or several times;
// the per-request stack is restored after every call. The returned error is
// non-nil only when an inner failure had no matching user-exception handler
// and is propagating to the top-level fault boundary.
type Next func(ctx *RequestCtx) error

// Middleware is the capability contract every registered unit must satisfy:
// process the request, optionally forward it through next, optionally
// transform the response afterwards.
type Middleware interface {
	Name() string
	Dispatch(ctx *RequestCtx, next Next) error
}

// Options carries the registration-time configuration of one unit.
type Options map[string]interface{}

// MiddlewareFactory constructs a unit from its options. Factories run once,
// at registration time; the produced unit is immutable afterwards.
type MiddlewareFactory func(options Options) (Middleware, error)

type MiddlewareRegistry interface {
	Register(factory MiddlewareFactory, options Options) error
	Snapshot() []Middleware
	Len() int
}
