package middleware

import (
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-pipeline/types"
	"github.com/saiset-co/sai-pipeline/utils"
)

type BodyLimitConfig struct {
	MaxBodySize int `json:"max_body_size"`
}

// BodyLimitMiddleware rejects oversized request bodies before any handler
// touches them. Rejection never reaches the continuation.
type BodyLimitMiddleware struct {
	logger          types.Logger
	metrics         types.MetricsManager
	bodyLimitConfig *BodyLimitConfig
}

func BodyLimit(logger types.Logger, metrics types.MetricsManager) types.MiddlewareFactory {
	return func(options types.Options) (types.Middleware, error) {
		bodyLimitConfig := &BodyLimitConfig{
			MaxBodySize: 4 * 1024 * 1024,
		}

		if options != nil {
			if err := utils.UnmarshalConfig(map[string]interface{}(options), bodyLimitConfig); err != nil {
				return nil, types.WrapError(err, "body limit middleware options")
			}
		}

		return &BodyLimitMiddleware{
			logger:          logger,
			metrics:         metrics,
			bodyLimitConfig: bodyLimitConfig,
		}, nil
	}
}

func (b *BodyLimitMiddleware) Name() string { return "body_limit" }

func (b *BodyLimitMiddleware) Dispatch(ctx *types.RequestCtx, next types.Next) error {
	size := len(ctx.PostBody())
	if contentLength := ctx.Request.Header.ContentLength(); contentLength > size {
		size = contentLength
	}

	if size > b.bodyLimitConfig.MaxBodySize {
		b.logger.Warn("Request body too large",
			zap.Int("size", size),
			zap.Int("limit", b.bodyLimitConfig.MaxBodySize),
			zap.ByteString("path", ctx.Path()))

		if b.metrics != nil {
			b.metrics.Counter("middleware_body_limit_rejections_total", nil).Inc()
		}

		return types.Errorf(types.ErrBodyTooLarge, "%d bytes, limit %d", size, b.bodyLimitConfig.MaxBodySize)
	}

	return next(ctx)
}

// BodyTooLargeHandler renders body limit violations as 413 responses. It is
// meant to be registered as an error handler on the host.
func BodyTooLargeHandler(ctx *types.RequestCtx, err error) (interface{}, error) {
	return types.NewHTTPError(fasthttp.StatusRequestEntityTooLarge, err.Error()), nil
}
