package service

import (
	"runtime"

	"github.com/saiset-co/sai-pipeline/middleware"
	"github.com/saiset-co/sai-pipeline/types"
)

// registerBuiltinMiddlewares wires the configured built-in units in a fixed
// order. Registration order is execution order: recovery comes first so it
// is outermost and absorbs panics from everything below it.
func (s *Service) registerBuiltinMiddlewares(cfg *types.ServiceConfig) error {
	middlewares := cfg.Middlewares
	if middlewares == nil || !middlewares.Enabled {
		return nil
	}

	type entry struct {
		item    *types.MiddlewareItemConfig
		factory types.MiddlewareFactory
	}

	entries := []entry{
		{middlewares.Recovery, middleware.Recovery(s.logger, s.metrics)},
		{middlewares.Logging, middleware.Logging(s.logger, s.metrics)},
		{middlewares.Metadata, middleware.Metadata(s.logger, s.metrics)},
		{middlewares.RateLimit, middleware.RateLimit(s.logger, s.metrics)},
		{middlewares.BodyLimit, middleware.BodyLimit(s.logger, s.metrics)},
		{middlewares.CORS, middleware.CORS(s.logger, s.metrics)},
		{middlewares.Auth, middleware.Auth(s.logger, s.metrics)},
	}

	if s.cache != nil {
		entries = append(entries, entry{middlewares.Cache, middleware.Cache(s.cache, s.logger, s.metrics)})
	}
	entries = append(entries, entry{middlewares.Compression, middleware.Compression(s.logger, s.metrics)})

	for _, e := range entries {
		if e.item == nil || !e.item.Enabled {
			continue
		}
		if err := s.registry.Register(e.factory, types.Options(e.item.Params)); err != nil {
			return err
		}
	}

	return nil
}

// registerBuiltinErrorHandlers binds the rejection errors raised by the
// built-in units to their default renderers on the global scope. Applications
// override them by registering their own handler for the same error.
func (s *Service) registerBuiltinErrorHandlers() {
	s.app.RegisterErrorHandler("", types.ErrAuthTokenInvalid, middleware.AuthFailedHandler)
	s.app.RegisterErrorHandler("", types.ErrBodyTooLarge, middleware.BodyTooLargeHandler)
	s.app.RegisterErrorHandler("", types.ErrRateLimitExceeded, middleware.RateLimitHandler)
}

// registerRuntimeStatsJob publishes process runtime gauges every 30 seconds
// while the scheduler runs.
func (s *Service) registerRuntimeStatsJob() error {
	return s.cron.Add("runtime_stats", "*/30 * * * * *", func() {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		s.metrics.Gauge("runtime_goroutines", nil).Set(float64(runtime.NumGoroutine()))
		s.metrics.Gauge("runtime_heap_alloc_bytes", nil).Set(float64(memStats.HeapAlloc))
		s.metrics.Gauge("runtime_gc_total", nil).Set(float64(memStats.NumGC))
	})
}
