package metrics

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-pipeline/types"
	"github.com/saiset-co/sai-pipeline/utils"
)

// MemoryMetrics is the in-process metrics backend. Values live in plain
// maps guarded by one mutex and are exposed as a JSON document, which is
// enough for development and tests.
type MemoryMetrics struct {
	ctx     context.Context
	logger  types.Logger
	running int32

	mu         sync.Mutex
	counters   map[string]*memoryCounter
	gauges     map[string]*memoryGauge
	histograms map[string]*memoryHistogram
}

func NewMemoryMetrics(ctx context.Context, logger types.Logger, _ *types.MetricsConfig) (types.MetricsManager, error) {
	return &MemoryMetrics{
		ctx:        ctx,
		logger:     logger,
		counters:   make(map[string]*memoryCounter),
		gauges:     make(map[string]*memoryGauge),
		histograms: make(map[string]*memoryHistogram),
	}, nil
}

func (m *MemoryMetrics) Start() error {
	if !atomic.CompareAndSwapInt32(&m.running, 0, 1) {
		return types.ErrServerAlreadyRunning
	}
	return nil
}

func (m *MemoryMetrics) Stop() error {
	if !atomic.CompareAndSwapInt32(&m.running, 1, 0) {
		return types.ErrServerNotRunning
	}
	return nil
}

func (m *MemoryMetrics) IsRunning() bool {
	return atomic.LoadInt32(&m.running) == 1
}

func (m *MemoryMetrics) Counter(name string, labels map[string]string) types.Counter {
	key := metricKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	counter, exists := m.counters[key]
	if !exists {
		counter = &memoryCounter{}
		m.counters[key] = counter
	}
	return counter
}

func (m *MemoryMetrics) Gauge(name string, labels map[string]string) types.Gauge {
	key := metricKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	gauge, exists := m.gauges[key]
	if !exists {
		gauge = &memoryGauge{}
		m.gauges[key] = gauge
	}
	return gauge
}

func (m *MemoryMetrics) Histogram(name string, _ []float64, labels map[string]string) types.Histogram {
	key := metricKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	histogram, exists := m.histograms[key]
	if !exists {
		histogram = &memoryHistogram{}
		m.histograms[key] = histogram
	}
	return histogram
}

func (m *MemoryMetrics) HTTPHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		snapshot := m.snapshot()

		body, err := utils.Marshal(snapshot)
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			return
		}

		ctx.SetContentType("application/json")
		ctx.SetBody(body)
	}
}

func (m *MemoryMetrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	counters := make(map[string]float64, len(m.counters))
	for key, counter := range m.counters {
		counters[key] = counter.value()
	}
	gauges := make(map[string]float64, len(m.gauges))
	for key, gauge := range m.gauges {
		gauges[key] = gauge.value()
	}
	histograms := make(map[string]map[string]float64, len(m.histograms))
	for key, histogram := range m.histograms {
		histograms[key] = histogram.summary()
	}

	return map[string]interface{}{
		"counters":   counters,
		"gauges":     gauges,
		"histograms": histograms,
	}
}

func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}

	pairs := make([]string, 0, len(labels))
	for label, value := range labels {
		pairs = append(pairs, label+"="+value)
	}
	sort.Strings(pairs)

	return name + "{" + strings.Join(pairs, ",") + "}"
}

type memoryCounter struct {
	bits uint64
}

func (c *memoryCounter) Inc() { c.Add(1) }

func (c *memoryCounter) Add(value float64) {
	for {
		old := atomic.LoadUint64(&c.bits)
		updated := math.Float64bits(math.Float64frombits(old) + value)
		if atomic.CompareAndSwapUint64(&c.bits, old, updated) {
			return
		}
	}
}

func (c *memoryCounter) value() float64 {
	return math.Float64frombits(atomic.LoadUint64(&c.bits))
}

type memoryGauge struct {
	bits uint64
}

func (g *memoryGauge) Set(value float64) {
	atomic.StoreUint64(&g.bits, math.Float64bits(value))
}

func (g *memoryGauge) Inc()              { g.Add(1) }
func (g *memoryGauge) Dec()              { g.Add(-1) }
func (g *memoryGauge) Sub(value float64) { g.Add(-value) }

func (g *memoryGauge) Add(value float64) {
	for {
		old := atomic.LoadUint64(&g.bits)
		updated := math.Float64bits(math.Float64frombits(old) + value)
		if atomic.CompareAndSwapUint64(&g.bits, old, updated) {
			return
		}
	}
}

func (g *memoryGauge) value() float64 {
	return math.Float64frombits(atomic.LoadUint64(&g.bits))
}

type memoryHistogram struct {
	mu    sync.Mutex
	count uint64
	sum   float64
	min   float64
	max   float64
}

func (h *memoryHistogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 || value < h.min {
		h.min = value
	}
	if h.count == 0 || value > h.max {
		h.max = value
	}
	h.count++
	h.sum += value
}

func (h *memoryHistogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

func (h *memoryHistogram) summary() map[string]float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	return map[string]float64{
		"count": float64(h.count),
		"sum":   h.sum,
		"min":   h.min,
		"max":   h.max,
	}
}
