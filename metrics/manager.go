package metrics

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-pipeline/types"
)

type ManagerState int32

const (
	ManagerStateStopped ManagerState = iota
	ManagerStateStarting
	ManagerStateRunning
	ManagerStateStopping
)

// Manager wraps the concrete metrics backend behind a common lifecycle.
// When metrics are disabled a no-op backend is used, so callers never need
// to branch on availability.
type Manager struct {
	ctx     context.Context
	cancel  context.CancelFunc
	logger  types.Logger
	manager types.MetricsManager
	state   atomic.Value
}

var customMetricsCreators = sync.Map{}

func RegisterMetricsManager(metricsManagerName string, creator types.MetricsManagerCreator) {
	customMetricsCreators.Store(metricsManagerName, creator)
}

func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger) (types.MetricsManager, error) {
	metricsConfig := config.GetConfig().Metrics

	managerCtx, cancel := context.WithCancel(ctx)

	wrapper := &Manager{
		ctx:    managerCtx,
		cancel: cancel,
		logger: logger,
	}
	wrapper.state.Store(ManagerStateStopped)

	if err := wrapper.initializeManager(config.GetConfig(), metricsConfig); err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to initialize metrics manager")
	}

	return wrapper, nil
}

func (w *Manager) initializeManager(serviceConfig *types.ServiceConfig, metricsConfig *types.MetricsConfig) error {
	if metricsConfig == nil || !metricsConfig.Enabled {
		w.manager = NewNoopMetrics()
		w.logger.Debug("Metrics disabled, using noop backend")
		return nil
	}

	var manager types.MetricsManager
	var err error

	switch metricsConfig.Type {
	case "memory":
		manager, err = NewMemoryMetrics(w.ctx, w.logger, metricsConfig)
	case "prometheus":
		manager, err = NewPrometheusMetrics(w.ctx, w.logger, serviceConfig.Name, metricsConfig)
	default:
		if creator, exists := customMetricsCreators.Load(metricsConfig.Type); exists {
			manager, err = creator.(types.MetricsManagerCreator)(metricsConfig)
		} else {
			return types.Errorf(types.ErrMetricsTypeUnknown, "type: %s", metricsConfig.Type)
		}
	}

	if err != nil {
		return err
	}

	w.manager = manager
	w.logger.Info("Metrics manager initialized", zap.String("type", metricsConfig.Type))
	return nil
}

func (w *Manager) Start() error {
	if !w.state.CompareAndSwap(ManagerStateStopped, ManagerStateStarting) {
		return types.ErrServerAlreadyRunning
	}

	if err := w.manager.Start(); err != nil {
		w.state.Store(ManagerStateStopped)
		return types.WrapError(err, "failed to start metrics backend")
	}

	w.state.Store(ManagerStateRunning)
	return nil
}

func (w *Manager) Stop() error {
	if !w.state.CompareAndSwap(ManagerStateRunning, ManagerStateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		w.state.Store(ManagerStateStopped)
		w.cancel()
	}()

	return w.manager.Stop()
}

func (w *Manager) IsRunning() bool {
	return w.state.Load().(ManagerState) == ManagerStateRunning
}

func (w *Manager) Counter(name string, labels map[string]string) types.Counter {
	return w.manager.Counter(name, labels)
}

func (w *Manager) Gauge(name string, labels map[string]string) types.Gauge {
	return w.manager.Gauge(name, labels)
}

func (w *Manager) Histogram(name string, buckets []float64, labels map[string]string) types.Histogram {
	return w.manager.Histogram(name, buckets, labels)
}

func (w *Manager) HTTPHandler() fasthttp.RequestHandler {
	return w.manager.HTTPHandler()
}
