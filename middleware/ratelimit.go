package middleware

import (
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/saiset-co/sai-pipeline/types"
	"github.com/saiset-co/sai-pipeline/utils"
)

type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second"`
	Burst             int     `json:"burst"`
	ClientTTL         int     `json:"client_ttl_seconds"`
}

type rateLimitClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware applies a token bucket per client IP. Stale client
// entries are dropped lazily during lookups.
type RateLimitMiddleware struct {
	logger          types.Logger
	metrics         types.MetricsManager
	rateLimitConfig *RateLimitConfig

	mu          sync.Mutex
	clients     map[string]*rateLimitClient
	lastCleanup time.Time
}

func RateLimit(logger types.Logger, metrics types.MetricsManager) types.MiddlewareFactory {
	return func(options types.Options) (types.Middleware, error) {
		rateLimitConfig := &RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			ClientTTL:         300,
		}

		if options != nil {
			if err := utils.UnmarshalConfig(map[string]interface{}(options), rateLimitConfig); err != nil {
				return nil, types.WrapError(err, "rate limit middleware options")
			}
		}

		return &RateLimitMiddleware{
			logger:          logger,
			metrics:         metrics,
			rateLimitConfig: rateLimitConfig,
			clients:         make(map[string]*rateLimitClient),
			lastCleanup:     time.Now(),
		}, nil
	}
}

func (r *RateLimitMiddleware) Name() string { return "rate_limit" }

func (r *RateLimitMiddleware) Dispatch(ctx *types.RequestCtx, next types.Next) error {
	client := r.clientKey(ctx)

	if !r.allow(client) {
		r.logger.Warn("Rate limit exceeded",
			zap.String("client", client),
			zap.ByteString("path", ctx.Path()))

		if r.metrics != nil {
			r.metrics.Counter("middleware_rate_limit_rejections_total", nil).Inc()
		}

		return types.Errorf(types.ErrRateLimitExceeded, "client %s", client)
	}

	return next(ctx)
}

func (r *RateLimitMiddleware) clientKey(ctx *types.RequestCtx) string {
	if realIP := ctx.Request.Header.Peek("X-Real-IP"); len(realIP) > 0 {
		return string(realIP)
	}
	return ctx.RemoteIP().String()
}

func (r *RateLimitMiddleware) allow(client string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.cleanupLocked(now)

	entry, ok := r.clients[client]
	if !ok {
		entry = &rateLimitClient{
			limiter: rate.NewLimiter(rate.Limit(r.rateLimitConfig.RequestsPerSecond), r.rateLimitConfig.Burst),
		}
		r.clients[client] = entry
	}
	entry.lastSeen = now

	return entry.limiter.Allow()
}

func (r *RateLimitMiddleware) cleanupLocked(now time.Time) {
	if now.Sub(r.lastCleanup) < time.Minute {
		return
	}
	r.lastCleanup = now

	ttl := time.Duration(r.rateLimitConfig.ClientTTL) * time.Second
	for client, entry := range r.clients {
		if now.Sub(entry.lastSeen) > ttl {
			delete(r.clients, client)
		}
	}
}

// RateLimitHandler renders rate limit violations as 429 responses.
func RateLimitHandler(ctx *types.RequestCtx, err error) (interface{}, error) {
	ctx.Response.Header.Set(fasthttp.HeaderRetryAfter, "1")
	return types.NewHTTPError(fasthttp.StatusTooManyRequests, "Rate limit exceeded"), nil
}
