package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-pipeline/types"
	"github.com/saiset-co/sai-pipeline/utils"
)

type AuthConfig struct {
	Tokens     []string `json:"tokens"`
	HeaderName string   `json:"header_name"`
	QueryParam string   `json:"query_param"`
	SkipPaths  []string `json:"skip_paths"`
}

// AuthMiddleware validates bearer tokens. A failed check raises an auth
// error instead of writing the response itself, so scoped error handlers
// and outer units observe the rejection like any other handled failure.
type AuthMiddleware struct {
	logger     types.Logger
	metrics    types.MetricsManager
	authConfig *AuthConfig
}

func Auth(logger types.Logger, metrics types.MetricsManager) types.MiddlewareFactory {
	return func(options types.Options) (types.Middleware, error) {
		authConfig := &AuthConfig{
			HeaderName: fasthttp.HeaderAuthorization,
			QueryParam: "token",
		}

		if options != nil {
			if err := utils.UnmarshalConfig(map[string]interface{}(options), authConfig); err != nil {
				return nil, types.WrapError(err, "auth middleware options")
			}
		}

		if len(authConfig.Tokens) == 0 {
			return nil, types.Errorf(types.ErrMiddlewareRegistration, "auth middleware has no tokens configured")
		}

		return &AuthMiddleware{
			logger:     logger,
			metrics:    metrics,
			authConfig: authConfig,
		}, nil
	}
}

func (a *AuthMiddleware) Name() string { return "auth" }

func (a *AuthMiddleware) Dispatch(ctx *types.RequestCtx, next types.Next) error {
	if string(ctx.Method()) == fasthttp.MethodOptions {
		return next(ctx)
	}

	path := string(ctx.Path())
	for _, skip := range a.authConfig.SkipPaths {
		if path == skip {
			return next(ctx)
		}
	}

	token := a.extractToken(ctx)
	if token == "" || !a.tokenValid(token) {
		a.logger.Warn("Authentication failed",
			zap.ByteString("path", ctx.Path()),
			zap.Bool("token_present", token != ""))

		if a.metrics != nil {
			a.metrics.Counter("middleware_auth_failures_total", nil).Inc()
		}

		return types.Errorf(types.ErrAuthTokenInvalid, "path %s", path)
	}

	a.logger.Debug("Authentication successful", zap.ByteString("path", ctx.Path()))
	return next(ctx)
}

func (a *AuthMiddleware) extractToken(ctx *types.RequestCtx) string {
	header := string(ctx.Request.Header.Peek(a.authConfig.HeaderName))
	if header != "" {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return string(ctx.QueryArgs().Peek(a.authConfig.QueryParam))
}

func (a *AuthMiddleware) tokenValid(token string) bool {
	for _, known := range a.authConfig.Tokens {
		if subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
			return true
		}
	}
	return false
}

// AuthFailedHandler renders auth errors as 401 responses.
func AuthFailedHandler(ctx *types.RequestCtx, err error) (interface{}, error) {
	return types.NewHTTPError(fasthttp.StatusUnauthorized, "Authentication required"), nil
}
