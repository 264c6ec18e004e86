package middleware

import (
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-pipeline/types"
	"github.com/saiset-co/sai-pipeline/utils"
)

type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	ExposedHeaders   []string `json:"exposed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

// CORSMiddleware answers preflight requests itself, without ever calling
// the continuation, and decorates ordinary responses with CORS headers
// after the inner chain ran.
type CORSMiddleware struct {
	logger     types.Logger
	metrics    types.MetricsManager
	corsConfig *CORSConfig

	allowsAll         bool
	allowedOriginsMap map[string]bool
	allowedMethods    string
	allowedHeaders    string
	exposedHeaders    string
	maxAge            string
}

func CORS(logger types.Logger, metrics types.MetricsManager) types.MiddlewareFactory {
	return func(options types.Options) (types.Middleware, error) {
		corsConfig := &CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
			MaxAge:         86400,
		}

		if options != nil {
			if err := utils.UnmarshalConfig(map[string]interface{}(options), corsConfig); err != nil {
				return nil, types.WrapError(err, "cors middleware options")
			}
		}

		cm := &CORSMiddleware{
			logger:            logger,
			metrics:           metrics,
			corsConfig:        corsConfig,
			allowedOriginsMap: make(map[string]bool, len(corsConfig.AllowedOrigins)),
			allowedMethods:    strings.Join(corsConfig.AllowedMethods, ", "),
			allowedHeaders:    strings.Join(corsConfig.AllowedHeaders, ", "),
			exposedHeaders:    strings.Join(corsConfig.ExposedHeaders, ", "),
			maxAge:            strconv.Itoa(corsConfig.MaxAge),
		}
		for _, origin := range corsConfig.AllowedOrigins {
			if origin == "*" {
				cm.allowsAll = true
				continue
			}
			cm.allowedOriginsMap[origin] = true
		}

		return cm, nil
	}
}

func (c *CORSMiddleware) Name() string { return "cors" }

func (c *CORSMiddleware) Dispatch(ctx *types.RequestCtx, next types.Next) error {
	origin := string(ctx.Request.Header.Peek(fasthttp.HeaderOrigin))
	if origin == "" {
		return next(ctx)
	}

	if !c.originAllowed(origin) {
		c.logger.Warn("CORS request blocked",
			zap.String("origin", origin),
			zap.ByteString("method", ctx.Method()),
			zap.ByteString("path", ctx.Path()))

		ctx.Response.SetStatusCode(fasthttp.StatusForbidden)
		ctx.Response.Header.SetContentType("application/json")
		ctx.Response.SetBodyString(`{"error":"Forbidden","message":"Origin not allowed"}`)
		return nil
	}

	if string(ctx.Method()) == fasthttp.MethodOptions &&
		len(ctx.Request.Header.Peek(fasthttp.HeaderAccessControlRequestMethod)) > 0 {
		c.writePreflight(ctx, origin)
		return nil
	}

	err := next(ctx)
	c.writeHeaders(ctx, origin)
	return err
}

func (c *CORSMiddleware) writePreflight(ctx *types.RequestCtx, origin string) {
	c.writeHeaders(ctx, origin)
	ctx.Response.Header.Set(fasthttp.HeaderAccessControlAllowMethods, c.allowedMethods)
	ctx.Response.Header.Set(fasthttp.HeaderAccessControlAllowHeaders, c.allowedHeaders)
	ctx.Response.Header.Set(fasthttp.HeaderAccessControlMaxAge, c.maxAge)
	ctx.Response.Header.Add(fasthttp.HeaderVary, fasthttp.HeaderAccessControlRequestMethod)
	ctx.Response.SetStatusCode(fasthttp.StatusNoContent)
}

func (c *CORSMiddleware) writeHeaders(ctx *types.RequestCtx, origin string) {
	if c.allowsAll && !c.corsConfig.AllowCredentials {
		ctx.Response.Header.Set(fasthttp.HeaderAccessControlAllowOrigin, "*")
	} else {
		ctx.Response.Header.Set(fasthttp.HeaderAccessControlAllowOrigin, origin)
		ctx.Response.Header.Add(fasthttp.HeaderVary, fasthttp.HeaderOrigin)
	}
	if c.corsConfig.AllowCredentials {
		ctx.Response.Header.Set(fasthttp.HeaderAccessControlAllowCredentials, "true")
	}
	if c.exposedHeaders != "" {
		ctx.Response.Header.Set(fasthttp.HeaderAccessControlExposeHeaders, c.exposedHeaders)
	}
}

func (c *CORSMiddleware) originAllowed(origin string) bool {
	if c.allowsAll {
		return true
	}
	return c.allowedOriginsMap[origin]
}
