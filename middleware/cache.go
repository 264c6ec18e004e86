package middleware

import (
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-pipeline/types"
	"github.com/saiset-co/sai-pipeline/utils"
)

type CacheMiddlewareConfig struct {
	TTL       time.Duration `json:"ttl"`
	SkipPaths []string      `json:"skip_paths"`
}

type cachedResponse struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// CacheMiddleware serves repeat GET requests from the cache manager. A hit
// writes the stored response and skips the continuation entirely.
type CacheMiddleware struct {
	logger      types.Logger
	metrics     types.MetricsManager
	cache       types.CacheManager
	cacheConfig *CacheMiddlewareConfig
}

func Cache(cache types.CacheManager, logger types.Logger, metrics types.MetricsManager) types.MiddlewareFactory {
	return func(options types.Options) (types.Middleware, error) {
		if cache == nil {
			return nil, types.ErrCacheIsDisabled
		}

		cacheConfig := &CacheMiddlewareConfig{
			TTL: time.Minute,
		}

		if options != nil {
			if err := utils.UnmarshalConfig(map[string]interface{}(options), cacheConfig); err != nil {
				return nil, types.WrapError(err, "cache middleware options")
			}
		}

		return &CacheMiddleware{
			logger:      logger,
			metrics:     metrics,
			cache:       cache,
			cacheConfig: cacheConfig,
		}, nil
	}
}

func (c *CacheMiddleware) Name() string { return "cache" }

func (c *CacheMiddleware) Dispatch(ctx *types.RequestCtx, next types.Next) error {
	if string(ctx.Method()) != fasthttp.MethodGet || c.skipped(ctx) {
		return next(ctx)
	}

	key := c.cache.BuildCacheKey(string(ctx.RequestURI()), nil, nil)

	if value, ok := c.cache.Get(key); ok {
		if cached, ok := value.(*cachedResponse); ok {
			c.writeCached(ctx, cached)
			c.count("hit")
			return nil
		}
	}

	err := next(ctx)
	c.count("miss")

	if err == nil && ctx.Response.StatusCode() == fasthttp.StatusOK {
		c.store(key, ctx)
	}

	return err
}

func (c *CacheMiddleware) skipped(ctx *types.RequestCtx) bool {
	path := string(ctx.Path())
	for _, skip := range c.cacheConfig.SkipPaths {
		if path == skip {
			return true
		}
	}
	return false
}

func (c *CacheMiddleware) writeCached(ctx *types.RequestCtx, cached *cachedResponse) {
	ctx.Response.SetStatusCode(cached.StatusCode)
	ctx.Response.Header.SetContentType(cached.ContentType)
	ctx.Response.SetBody(cached.Body)
	ctx.Response.Header.Set("X-Cache", "HIT")
}

func (c *CacheMiddleware) store(key string, ctx *types.RequestCtx) {
	body := make([]byte, len(ctx.Response.Body()))
	copy(body, ctx.Response.Body())

	cached := &cachedResponse{
		StatusCode:  ctx.Response.StatusCode(),
		ContentType: string(ctx.Response.Header.ContentType()),
		Body:        body,
	}

	if err := c.cache.Set(key, cached, c.cacheConfig.TTL); err != nil {
		c.logger.Warn("Response caching failed",
			zap.Error(err),
			zap.String("key", key))
	}
}

func (c *CacheMiddleware) count(result string) {
	if c.metrics != nil {
		c.metrics.Counter("middleware_cache_requests_total", map[string]string{
			"result": result,
		}).Inc()
	}
}
