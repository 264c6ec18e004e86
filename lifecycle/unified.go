package lifecycle

import (
	"time"

	"github.com/saiset-co/sai-pipeline/types"
)

// unifiedRunner handles the newest host contract: the host's own dispatch
// already covers pre-processing, routing, response conversion and
// finalization, so the runner only brackets it with context management and
// top-level exception handling.
type unifiedRunner struct {
	host    types.HostApp
	logger  types.Logger
	metrics types.MetricsManager
}

func (r *unifiedRunner) Serve(ctx *types.RequestCtx) error {
	start := time.Now()

	r.host.PushContext(ctx)

	var reqErr error
	defer func() {
		preserveDebugContext(r.host, ctx, r.logger)

		if reqErr != nil && r.host.ShouldIgnoreError(reqErr) {
			reqErr = nil
		}
		r.host.PopContext(ctx, reqErr)

		if r.metrics != nil {
			r.metrics.Histogram("lifecycle_request_duration_seconds",
				[]float64{0.001, 0.01, 0.1, 1.0, 10.0},
				map[string]string{"contract": "unified"},
			).ObserveDuration(start)
		}
	}()

	if err := r.host.FullDispatch(ctx); err != nil {
		reqErr = err

		rv, herr := r.host.HandleException(ctx, err)
		if herr != nil {
			return herr
		}
		if merr := r.host.MakeResponse(ctx, rv); merr != nil {
			return merr
		}
	}

	return nil
}
