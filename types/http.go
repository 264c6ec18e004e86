package types

import (
	"fmt"

	"github.com/valyala/fasthttp"
)

// HTTPError is an error that carries its own HTTP rendering. When no custom
// handler matches, the user-exception facility renders it directly instead
// of re-raising.
type HTTPError struct {
	Code    int    `json:"-"`
	Name    string `json:"error"`
	Message string `json:"message"`
}

func NewHTTPError(code int, message string) *HTTPError {
	return &HTTPError{
		Code:    code,
		Name:    fasthttp.StatusMessage(code),
		Message: message,
	}
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Code, e.Name, e.Message)
}

// Responder lets a response-convertible value render itself.
type Responder interface {
	Respond(ctx *RequestCtx) error
}

// ErrorHandlerFunc converts a captured error into a response-convertible
// value. Returning a non-nil error re-raises.
type ErrorHandlerFunc func(ctx *RequestCtx, err error) (interface{}, error)
