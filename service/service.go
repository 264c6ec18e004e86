package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-pipeline/cache"
	"github.com/saiset-co/sai-pipeline/config"
	"github.com/saiset-co/sai-pipeline/cron"
	"github.com/saiset-co/sai-pipeline/host"
	"github.com/saiset-co/sai-pipeline/lifecycle"
	"github.com/saiset-co/sai-pipeline/logger"
	"github.com/saiset-co/sai-pipeline/metrics"
	"github.com/saiset-co/sai-pipeline/pipeline"
	"github.com/saiset-co/sai-pipeline/server"
	"github.com/saiset-co/sai-pipeline/tls"
	"github.com/saiset-co/sai-pipeline/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// Service assembles the host application, the interceptor pipeline and the
// transport into one runnable unit. Construction wires everything eagerly;
// Start only flips lifecycle switches, so a misconfigured service fails at
// NewService rather than mid-startup.
type Service struct {
	ctx             context.Context
	cancel          context.CancelFunc
	done            chan struct{}
	wg              sync.WaitGroup
	state           atomic.Value
	shutdownTimeout time.Duration
	startTimeout    time.Duration

	config     *config.ConfigurationManager
	logger     types.LoggerManager
	metrics    types.MetricsManager
	cache      types.CacheManager
	app        *host.App
	registry   *pipeline.Registry
	dispatcher *pipeline.Dispatcher
	runner     lifecycle.Runner
	tlsManager types.TLSManager
	httpServer *server.FastHTTPServer
	cron       types.CronManager
}

func NewService(ctx context.Context, configPath string) (*Service, error) {
	if configPath == "" {
		return nil, types.ErrConfigInvalidPath
	}
	if _, err := os.Stat(configPath); err != nil {
		return nil, types.WrapError(err, "config file is not readable")
	}

	serviceCtx, cancel := context.WithCancel(ctx)

	s := &Service{
		ctx:             serviceCtx,
		cancel:          cancel,
		done:            make(chan struct{}),
		shutdownTimeout: 30 * time.Second,
		startTimeout:    60 * time.Second,
	}
	s.state.Store(StateStopped)

	if err := s.buildComponents(serviceCtx, configPath); err != nil {
		cancel()
		return nil, err
	}

	return s, nil
}

func (s *Service) buildComponents(ctx context.Context, configPath string) error {
	configManager, err := config.NewConfigurationManager(ctx, configPath)
	if err != nil {
		return types.WrapError(err, "failed to build config manager")
	}
	s.config = configManager
	cfg := configManager.GetConfig()

	loggerManager, err := logger.NewManager(ctx, configManager)
	if err != nil {
		return types.WrapError(err, "failed to build logger")
	}
	s.logger = loggerManager

	metricsManager, err := metrics.NewManager(ctx, configManager, loggerManager)
	if err != nil {
		return types.WrapError(err, "failed to build metrics manager")
	}
	s.metrics = metricsManager

	cacheManager, err := cache.NewCacheManager(ctx, configManager, loggerManager, metricsManager)
	switch {
	case err == nil:
		s.cache = cacheManager
	case types.IsError(err, types.ErrCacheIsDisabled):
		// The cache-dependent pieces are simply not wired.
	default:
		return types.WrapError(err, "failed to build cache manager")
	}

	app, err := host.NewApp(configManager, loggerManager, metricsManager)
	if err != nil {
		return types.WrapError(err, "failed to build host application")
	}
	s.app = app

	s.registry = pipeline.NewRegistry(loggerManager)
	bridge := pipeline.NewBridge(app, loggerManager)
	s.dispatcher = pipeline.NewDispatcher(app, s.registry, bridge, loggerManager, metricsManager)
	s.runner = lifecycle.NewRunner(app, s.dispatcher, bridge, loggerManager, metricsManager)

	if err := s.registerBuiltinMiddlewares(cfg); err != nil {
		return types.WrapError(err, "failed to register built-in middlewares")
	}
	s.registerBuiltinErrorHandlers()

	if cfg.Server != nil && cfg.Server.TLS != nil && cfg.Server.TLS.Enabled {
		tlsManager, err := tls.NewCertManager(ctx, loggerManager, configManager)
		if err != nil {
			return types.WrapError(err, "failed to build TLS manager")
		}
		s.tlsManager = tlsManager
	}

	httpServer, err := server.NewHTTPServer(ctx, configManager, loggerManager, metricsManager, s.runner, s.tlsManager)
	if err != nil {
		return types.WrapError(err, "failed to build HTTP server")
	}
	s.httpServer = httpServer

	if cfg.Cron != nil && cfg.Cron.Enabled {
		cronManager, err := cron.NewManager(ctx, configManager, loggerManager, metricsManager)
		if err != nil {
			return types.WrapError(err, "failed to build cron manager")
		}
		s.cron = cronManager

		if err := s.registerRuntimeStatsJob(); err != nil {
			return types.WrapError(err, "failed to register runtime stats job")
		}
	}

	return nil
}

// App exposes the host application for route, hook and error-handler
// registration.
func (s *Service) App() *host.App { return s.app }

// Use registers a middleware unit. The first registered unit is outermost.
func (s *Service) Use(factory types.MiddlewareFactory, options types.Options) error {
	return s.registry.Register(factory, options)
}

func (s *Service) Config() types.ConfigManager   { return s.config }
func (s *Service) Logger() types.Logger          { return s.logger }
func (s *Service) Metrics() types.MetricsManager { return s.metrics }

// Cache returns nil when caching is disabled in the configuration.
func (s *Service) Cache() types.CacheManager { return s.cache }

// Cron returns nil when the scheduler is disabled in the configuration.
func (s *Service) Cron() types.CronManager { return s.cron }

// Start runs the service until Stop is called, a shutdown signal arrives or
// the parent context is cancelled.
func (s *Service) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		s.logger.Warn("Service is already running")
		return types.ErrServerAlreadyRunning
	}

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				runErr = fmt.Errorf("service panic: %v", r)
				s.logger.ErrorWithStack("Service run panic", string(buf[:n]))
				s.setState(StateStopped)
			}
		}()

		runErr = s.run()
	}()

	return runErr
}

func (s *Service) run() error {
	s.logger.Info("Starting service",
		zap.String("name", s.config.GetConfig().Name),
		zap.String("version", s.config.GetConfig().Version))

	ctx, cancel := context.WithTimeout(s.ctx, s.startTimeout)
	defer cancel()

	if err := s.startComponents(ctx); err != nil {
		s.setState(StateStopped)
		return types.WrapError(err, "failed to start components")
	}

	s.setState(StateRunning)
	s.setupSignalHandling()

	s.wg.Add(1)
	go s.contextMonitor()

	s.logger.Info("Service started successfully")

	<-s.done

	if err := s.stopComponents(); err != nil {
		s.logger.Error("Error during service shutdown", zap.Error(err))
	}

	s.wg.Wait()
	s.setState(StateStopped)

	s.logger.Info("Service stopped gracefully")
	return nil
}

func (s *Service) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		s.logger.Warn("Service is not running")
		return types.ErrServiceIsNotRunning
	}

	s.logger.Info("Stopping service...")
	s.cancel()

	return nil
}

func (s *Service) Done() <-chan struct{} {
	return s.done
}

func (s *Service) Context() context.Context {
	return s.ctx
}

func (s *Service) IsRunning() bool {
	return s.getState() == StateRunning
}

func (s *Service) getState() State {
	return s.state.Load().(State)
}

func (s *Service) setState(newState State) bool {
	return s.state.CompareAndSwap(s.getState(), newState)
}

func (s *Service) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}

func (s *Service) startComponents(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if err := s.config.Start(); err != nil {
			return types.WrapError(err, "failed to start config manager")
		}
	}

	if manager, ok := s.logger.(types.LifecycleManager); ok {
		if err := manager.Start(); err != nil {
			return types.WrapError(err, "failed to start logger")
		}
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		default:
			if err := s.metrics.Start(); err != nil {
				s.logger.Error("Failed to start metrics manager", zap.Error(err))
			}
			return nil
		}
	})

	if s.cache != nil {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if err := s.cache.Start(); err != nil {
					s.logger.Error("Failed to start cache manager", zap.Error(err))
				}
				return nil
			}
		})
	}

	if s.tlsManager != nil {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if err := s.tlsManager.Start(); err != nil {
					s.logger.Error("Failed to start TLS manager", zap.Error(err))
				}
				return nil
			}
		})
	}

	if err := g.Wait(); err != nil {
		select {
		case <-ctx.Done():
			return types.NewErrorf("component startup timeout: %v", ctx.Err())
		default:
			return err
		}
	}

	if err := s.httpServer.Start(); err != nil {
		return types.WrapError(err, "failed to start HTTP server")
	}

	if s.cron != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.cron.Start(); err != nil {
				s.logger.Error("Failed to start cron manager", zap.Error(err))
			}
		}
	}

	s.logger.Info("All components started successfully")
	return nil
}

func (s *Service) stopComponents() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	var errs []error

	s.logger.Info("Stopping service components...")

	if s.cron != nil {
		if err := s.cron.Stop(); err != nil {
			s.logger.Error("Failed to stop cron manager", zap.Error(err))
			errs = append(errs, err)
		}
	}

	if err := s.httpServer.Stop(); err != nil {
		s.logger.Error("Failed to stop HTTP server", zap.Error(err))
		errs = append(errs, err)
	}

	g, gCtx := errgroup.WithContext(ctx)

	if s.tlsManager != nil {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if err := s.tlsManager.Stop(); err != nil {
					s.logger.Error("Failed to stop TLS manager", zap.Error(err))
					return err
				}
				return nil
			}
		})
	}

	if s.cache != nil {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if err := s.cache.Stop(); err != nil {
					s.logger.Error("Failed to stop cache manager", zap.Error(err))
					return err
				}
				return nil
			}
		})
	}

	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		default:
			if err := s.metrics.Stop(); err != nil {
				s.logger.Error("Failed to stop metrics manager", zap.Error(err))
				return err
			}
			return nil
		}
	})

	if err := g.Wait(); err != nil {
		select {
		case <-ctx.Done():
			s.logger.Warn("Component shutdown timeout, some components may not have stopped gracefully")
		default:
			errs = append(errs, err)
		}
	}

	if err := s.config.Stop(); err != nil {
		s.logger.Error("Failed to stop config manager", zap.Error(err))
		errs = append(errs, err)
	}

	if manager, ok := s.logger.(types.LifecycleManager); ok {
		if err := manager.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return types.NewErrorf("errors during shutdown: %v", errs)
	}

	return nil
}

func (s *Service) setupSignalHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case sig := <-sigChan:
			s.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
			if s.transitionState(StateRunning, StateStopping) {
				s.cancel()
			}

		case <-s.ctx.Done():
			s.logger.Info("Service context cancelled")
		}

		signal.Stop(sigChan)
		close(sigChan)
	}()
}

func (s *Service) contextMonitor() {
	defer s.wg.Done()
	defer close(s.done)

	<-s.ctx.Done()

	switch err := s.ctx.Err(); {
	case types.IsError(err, context.Canceled):
		s.logger.Info("Service shutdown: context cancelled")
	case types.IsError(err, context.DeadlineExceeded):
		s.logger.Warn("Service shutdown: context deadline exceeded")
	default:
		s.logger.Info("Service shutdown: context done")
	}
}
