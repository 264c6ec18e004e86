package lifecycle

import (
	"strings"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-pipeline/pipeline"
	"github.com/saiset-co/sai-pipeline/types"
)

// Runner reproduces the host framework's internal request-handling sequence
// so the interceptor chain can be spliced in at a point the host does not
// expose natively. Serve is the host-convention entry point; it returns a
// non-nil error only for failures no registered handler could classify,
// which the transport renders as a generic fault. The request context is
// always popped before such an error escapes.
type Runner interface {
	Serve(ctx *types.RequestCtx) error
}

// NewRunner selects the runner matching the host's lifecycle contract. The
// version is read once here; request handling never branches on it again.
//
// Contract 3.x hands the whole request to the host's unified dispatch.
// Contract 2.x adds a guarded one-time first-request step that 1.x lacks;
// both otherwise share the legacy sequence. Anything older or unrecognized
// is treated as the oldest contract, matching the host's own fallback.
func NewRunner(host types.HostApp, dispatcher *pipeline.Dispatcher, bridge *pipeline.Bridge, logger types.Logger, metrics types.MetricsManager) Runner {
	contract := host.ContractVersion()

	switch {
	case strings.HasPrefix(contract, "3"):
		// Divergence inherited from the original integration: the unified
		// path trusts the host's own dispatch and never walks the
		// interceptor chain. Surfaced loudly instead of silently changed.
		logger.Warn("Unified lifecycle contract selected: requests are handled by the host's own dispatch and bypass the interceptor chain",
			zap.String("contract", contract))

		return &unifiedRunner{
			host:    host,
			logger:  logger,
			metrics: metrics,
		}

	case strings.HasPrefix(contract, "2"):
		logger.Info("Legacy lifecycle contract selected",
			zap.String("contract", contract),
			zap.Bool("first_request_guard", true))

		return newLegacyRunner(host, dispatcher, bridge, logger, metrics, true)

	default:
		logger.Info("Legacy lifecycle contract selected",
			zap.String("contract", contract),
			zap.Bool("first_request_guard", false))

		return newLegacyRunner(host, dispatcher, bridge, logger, metrics, false)
	}
}

// preserveDebugContext hands the context snapshot to an attached debugger
// hook, when one was installed on this request. Best effort only.
func preserveDebugContext(host types.HostApp, ctx *types.RequestCtx, logger types.Logger) {
	hook, ok := ctx.UserValue(types.DebugPreserveKey).(types.DebugPreserveFunc)
	if !ok || hook == nil {
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Debug("Debug context preservation failed", zap.Any("panic", rec))
		}
	}()

	hook(host.ContextSnapshot(ctx))
}
