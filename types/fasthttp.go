package types

import (
	"github.com/valyala/fasthttp"
)

// RequestCtx wraps the transport-level request context. Every inbound
// request gets exactly one RequestCtx; all request-scoped state (dispatch
// stack, route binding, pending error) lives in its user values and is
// discarded when the request completes.
type RequestCtx struct {
	*fasthttp.RequestCtx
}

func WrapRequestCtx(ctx *fasthttp.RequestCtx) *RequestCtx {
	return &RequestCtx{RequestCtx: ctx}
}

// ViewFunc is a terminal route handler. The returned value is coerced into
// the response by the host's response-coercion facility; returning nil keeps
// whatever the handler already wrote to the context.
type ViewFunc func(ctx *RequestCtx) (interface{}, error)
