package middleware

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-pipeline/types"
	"github.com/saiset-co/sai-pipeline/utils"
)

const RequestIDKey = "sai.metadata.request_id"

type MetadataConfig struct {
	PropagatedHeaders []string `json:"propagated_headers"`
	GenerateRequestID bool     `json:"generate_request_id"`
}

// MetadataMiddleware lifts correlation headers into user values and assigns
// a request ID when the client did not send one.
type MetadataMiddleware struct {
	logger         types.Logger
	metrics        types.MetricsManager
	metadataConfig *MetadataConfig
}

func Metadata(logger types.Logger, metrics types.MetricsManager) types.MiddlewareFactory {
	return func(options types.Options) (types.Middleware, error) {
		metadataConfig := &MetadataConfig{
			GenerateRequestID: true,
			PropagatedHeaders: []string{
				"Authorization",
				"X-User-ID",
				"X-Real-IP",
				"X-Forwarded-For",
				"X-Request-ID",
				"X-Trace-ID",
			},
		}

		if options != nil {
			if err := utils.UnmarshalConfig(map[string]interface{}(options), metadataConfig); err != nil {
				return nil, types.WrapError(err, "metadata middleware options")
			}
		}

		return &MetadataMiddleware{
			logger:         logger,
			metrics:        metrics,
			metadataConfig: metadataConfig,
		}, nil
	}
}

func (m *MetadataMiddleware) Name() string { return "metadata" }

func (m *MetadataMiddleware) Dispatch(ctx *types.RequestCtx, next types.Next) error {
	requestID := string(ctx.Request.Header.Peek("X-Request-ID"))
	if requestID == "" && m.metadataConfig.GenerateRequestID {
		requestID = uuid.NewString()
	}

	if requestID != "" {
		ctx.SetUserValue(RequestIDKey, requestID)
		ctx.Response.Header.Set("X-Request-ID", requestID)
	}

	for _, header := range m.metadataConfig.PropagatedHeaders {
		if value := ctx.Request.Header.Peek(header); len(value) > 0 {
			ctx.SetUserValue("sai.metadata."+header, string(value))
		}
	}

	err := next(ctx)

	m.logger.Debug("Metadata processed",
		zap.String("request_id", requestID),
		zap.ByteString("path", ctx.Path()))

	return err
}
