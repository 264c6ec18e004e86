package host

import (
	"errors"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-pipeline/types"
)

// IgnorableError marks errors that should be dropped silently when the
// request context is torn down, such as client disconnects.
type IgnorableError interface {
	IgnorableError() bool
}

type errorHandler struct {
	target error
	code   int
	fn     types.ErrorHandlerFunc
}

func (h *errorHandler) matches(err error) bool {
	if h.target != nil && errors.Is(err, h.target) {
		return true
	}
	if h.code != 0 {
		var httpErr *types.HTTPError
		if errors.As(err, &httpErr) && httpErr.Code == h.code {
			return true
		}
	}
	return false
}

// RegisterErrorHandler installs a handler for errors matching target via
// errors.Is, in the given scope. An empty scope applies globally.
func (a *App) RegisterErrorHandler(scope string, target error, fn types.ErrorHandlerFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errorHandlers[scope] = append(a.errorHandlers[scope], &errorHandler{target: target, fn: fn})
}

// RegisterStatusHandler installs a handler for HTTP errors with the given
// status code, in the given scope.
func (a *App) RegisterStatusHandler(scope string, code int, fn types.ErrorHandlerFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errorHandlers[scope] = append(a.errorHandlers[scope], &errorHandler{code: code, fn: fn})
}

// HandleUserException resolves an application-level error into a response
// value. Handler lookup walks the route's scopes innermost first, then the
// global scope. Unmatched HTTP errors render themselves; anything else is
// re-raised to the caller.
func (a *App) HandleUserException(ctx *types.RequestCtx, err error) (interface{}, error) {
	scopes := append(a.RouteScopes(ctx), "")
	for _, scope := range scopes {
		for _, handler := range a.errorHandlers[scope] {
			if handler.matches(err) {
				return handler.fn(ctx, err)
			}
		}
	}

	var httpErr *types.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr, nil
	}

	return nil, err
}

// HandleException is the last resort for errors no handler claimed. With
// error propagation enabled the error escapes to the transport boundary;
// otherwise a generic 500 is produced, through a registered 500 handler if
// one exists.
func (a *App) HandleException(ctx *types.RequestCtx, err error) (interface{}, error) {
	a.logger.Error("Unhandled exception while handling request",
		zap.Error(err),
		zap.ByteString("method", ctx.Method()),
		zap.ByteString("path", ctx.Path()))

	if a.metrics != nil {
		a.metrics.Counter("host_unhandled_exceptions_total", map[string]string{
			"method": string(ctx.Method()),
		}).Inc()
	}

	if a.propagateErrors {
		return nil, err
	}

	serverError := types.NewHTTPError(fasthttp.StatusInternalServerError,
		"The server encountered an internal error and was unable to complete your request.")

	scopes := append(a.RouteScopes(ctx), "")
	for _, scope := range scopes {
		for _, handler := range a.errorHandlers[scope] {
			if handler.code != fasthttp.StatusInternalServerError {
				continue
			}
			rv, herr := handler.fn(ctx, err)
			if herr != nil {
				a.logger.Error("Custom 500 handler failed", zap.Error(herr))
				return serverError, nil
			}
			return rv, nil
		}
	}

	return serverError, nil
}

// ShouldIgnoreError reports whether a teardown error is noise rather than
// a failure, so the caller can skip reporting it.
func (a *App) ShouldIgnoreError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, types.ErrRequestAborted) {
		return true
	}
	var ignorable IgnorableError
	if errors.As(err, &ignorable) {
		return ignorable.IgnorableError()
	}
	return false
}
