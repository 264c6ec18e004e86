package metrics

import (
	"time"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-pipeline/types"
)

// NoopMetrics satisfies the metrics contract while recording nothing. It is
// substituted when metrics are disabled.
type NoopMetrics struct{}

func NewNoopMetrics() types.MetricsManager {
	return &NoopMetrics{}
}

func (n *NoopMetrics) Start() error    { return nil }
func (n *NoopMetrics) Stop() error     { return nil }
func (n *NoopMetrics) IsRunning() bool { return true }

func (n *NoopMetrics) Counter(string, map[string]string) types.Counter {
	return noopCounter{}
}

func (n *NoopMetrics) Gauge(string, map[string]string) types.Gauge {
	return noopGauge{}
}

func (n *NoopMetrics) Histogram(string, []float64, map[string]string) types.Histogram {
	return noopHistogram{}
}

func (n *NoopMetrics) HTTPHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

type noopCounter struct{}

func (noopCounter) Inc()        {}
func (noopCounter) Add(float64) {}

type noopGauge struct{}

func (noopGauge) Set(float64) {}
func (noopGauge) Inc()        {}
func (noopGauge) Dec()        {}
func (noopGauge) Add(float64) {}
func (noopGauge) Sub(float64) {}

type noopHistogram struct{}

func (noopHistogram) Observe(float64)           {}
func (noopHistogram) ObserveDuration(time.Time) {}
