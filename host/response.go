package host

import (
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-pipeline/types"
	"github.com/saiset-co/sai-pipeline/utils"
)

const (
	contentTypeJSON = "application/json"
	contentTypeText = "text/plain; charset=utf-8"
)

// MakeResponse converts a view or hook return value into the outgoing
// response. nil means the body was written directly and is left untouched.
func (a *App) MakeResponse(ctx *types.RequestCtx, rv interface{}) error {
	switch value := rv.(type) {
	case nil:
		return nil

	case types.Responder:
		return value.Respond(ctx)

	case *types.HTTPError:
		return a.writeHTTPError(ctx, value)

	case string:
		ctx.Response.Header.SetContentType(contentTypeText)
		ctx.Response.SetBodyString(value)
		return nil

	case []byte:
		ctx.Response.SetBody(value)
		return nil

	case int:
		ctx.Response.SetStatusCode(value)
		return nil

	default:
		body, err := utils.Marshal(value)
		if err != nil {
			a.logger.Error("Response conversion failed",
				zap.Error(err),
				zap.ByteString("path", ctx.Path()))
			return types.Errorf(types.ErrResponseCoercion, "%T: %v", rv, err)
		}
		ctx.Response.Header.SetContentType(contentTypeJSON)
		ctx.Response.SetBody(body)
		return nil
	}
}

func (a *App) writeHTTPError(ctx *types.RequestCtx, httpErr *types.HTTPError) error {
	body, err := utils.Marshal(httpErr)
	if err != nil {
		return types.Errorf(types.ErrResponseCoercion, "http error body: %v", err)
	}
	ctx.Response.SetStatusCode(httpErr.Code)
	ctx.Response.Header.SetContentType(contentTypeJSON)
	ctx.Response.SetBody(body)
	return nil
}

// optionsResponse is the host's default answer to OPTIONS requests on
// routed paths without an explicit OPTIONS view.
type optionsResponse struct {
	allowed []string
}

func (o *optionsResponse) Respond(ctx *types.RequestCtx) error {
	ctx.Response.Header.Set(fasthttp.HeaderAllow, strings.Join(o.allowed, ", "))
	ctx.Response.SetStatusCode(fasthttp.StatusOK)
	return nil
}
