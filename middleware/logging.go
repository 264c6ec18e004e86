package middleware

import (
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-pipeline/types"
	"github.com/saiset-co/sai-pipeline/utils"
)

type LoggingConfig struct {
	LogLevel   string `json:"log_level"`
	LogHeaders bool   `json:"log_headers"`
	LogBody    bool   `json:"log_body"`
}

type LoggingMiddleware struct {
	logger        types.Logger
	metrics       types.MetricsManager
	loggingConfig *LoggingConfig
}

func Logging(logger types.Logger, metrics types.MetricsManager) types.MiddlewareFactory {
	return func(options types.Options) (types.Middleware, error) {
		loggingConfig := &LoggingConfig{
			LogLevel:   "info",
			LogHeaders: false,
			LogBody:    false,
		}

		if options != nil {
			if err := utils.UnmarshalConfig(map[string]interface{}(options), loggingConfig); err != nil {
				return nil, types.WrapError(err, "logging middleware options")
			}
		}

		return &LoggingMiddleware{
			logger:        logger,
			metrics:       metrics,
			loggingConfig: loggingConfig,
		}, nil
	}
}

func (l *LoggingMiddleware) Name() string { return "logging" }

func (l *LoggingMiddleware) Dispatch(ctx *types.RequestCtx, next types.Next) error {
	start := time.Now()

	l.logRequest(ctx)

	err := next(ctx)

	duration := time.Since(start)
	l.logResponse(ctx, duration, err)

	if l.metrics != nil {
		l.metrics.Histogram("http_request_duration_seconds",
			[]float64{0.001, 0.01, 0.1, 1.0, 10.0},
			map[string]string{"method": string(ctx.Method())},
		).Observe(duration.Seconds())
	}

	return err
}

func (l *LoggingMiddleware) logRequest(ctx *types.RequestCtx) {
	fields := []zap.Field{
		zap.ByteString("method", ctx.Method()),
		zap.ByteString("path", ctx.Path()),
		zap.String("remote_addr", ctx.RemoteAddr().String()),
		zap.ByteString("user_agent", ctx.UserAgent()),
	}

	if len(ctx.QueryArgs().QueryString()) > 0 {
		fields = append(fields, zap.ByteString("query", ctx.QueryArgs().QueryString()))
	}

	if l.loggingConfig.LogHeaders {
		headers := map[string]string{}
		ctx.Request.Header.VisitAll(func(key, value []byte) {
			headers[string(key)] = string(value)
		})
		fields = append(fields, zap.Any("headers", headers))
	}

	if l.loggingConfig.LogBody && len(ctx.PostBody()) > 0 {
		fields = append(fields, zap.ByteString("body", ctx.PostBody()))
	}

	l.log("Request received", fields)
}

func (l *LoggingMiddleware) logResponse(ctx *types.RequestCtx, duration time.Duration, err error) {
	fields := []zap.Field{
		zap.ByteString("method", ctx.Method()),
		zap.ByteString("path", ctx.Path()),
		zap.Int("status", ctx.Response.StatusCode()),
		zap.Duration("duration", duration),
		zap.Int("size", len(ctx.Response.Body())),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}

	status := ctx.Response.StatusCode()
	switch {
	case err != nil || status >= fasthttp.StatusInternalServerError:
		l.logger.Error("Request completed", fields...)
	case status >= fasthttp.StatusBadRequest:
		l.logger.Warn("Request completed", fields...)
	default:
		l.log("Request completed", fields)
	}
}

func (l *LoggingMiddleware) log(message string, fields []zap.Field) {
	switch l.loggingConfig.LogLevel {
	case "debug":
		l.logger.Debug(message, fields...)
	default:
		l.logger.Info(message, fields...)
	}
}
