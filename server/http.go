package server

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-pipeline/lifecycle"
	"github.com/saiset-co/sai-pipeline/types"
	"github.com/saiset-co/sai-pipeline/utils"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// FastHTTPServer is the transport boundary. Every request is handed to the
// lifecycle runner; an error coming back means no handler anywhere in the
// pipeline claimed it, and the server answers with the generic fault
// response.
type FastHTTPServer struct {
	ctx        context.Context
	cancel     context.CancelFunc
	config     types.ConfigManager
	logger     types.Logger
	metrics    types.MetricsManager
	runner     lifecycle.Runner
	tlsManager types.TLSManager
	server     *fasthttp.Server
	listener   net.Listener
	httpConfig *types.HTTPConfig
	tlsConfig  *types.TLSConfig
	state      atomic.Value

	metricsPath     string
	shutdownTimeout time.Duration
}

func NewHTTPServer(
	ctx context.Context,
	config types.ConfigManager,
	logger types.Logger,
	metrics types.MetricsManager,
	runner lifecycle.Runner,
	tlsManager types.TLSManager,
) (*FastHTTPServer, error) {
	if runner == nil {
		return nil, types.ErrHandlerIsNil
	}

	serverCtx, cancel := context.WithCancel(ctx)

	server := &FastHTTPServer{
		ctx:             serverCtx,
		cancel:          cancel,
		config:          config,
		logger:          logger,
		metrics:         metrics,
		runner:          runner,
		tlsManager:      tlsManager,
		httpConfig:      config.GetConfig().Server.HTTP,
		tlsConfig:       config.GetConfig().Server.TLS,
		shutdownTimeout: 5 * time.Second,
	}

	if metricsConfig := config.GetConfig().Metrics; metricsConfig != nil && metricsConfig.Enabled {
		server.metricsPath = metricsConfig.Path
	}

	server.state.Store(StateStopped)

	return server, nil
}

func (h *FastHTTPServer) Start() error {
	if !h.state.CompareAndSwap(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	h.server = &fasthttp.Server{
		Handler:                      h.mainHandler(),
		ReadTimeout:                  time.Duration(h.httpConfig.ReadTimeout) * time.Second,
		WriteTimeout:                 time.Duration(h.httpConfig.WriteTimeout) * time.Second,
		IdleTimeout:                  time.Duration(h.httpConfig.IdleTimeout) * time.Second,
		TCPKeepalive:                 true,
		DisablePreParseMultipartForm: true,
		CloseOnShutdown:              true,
	}

	addr := fmt.Sprintf("%s:%d", h.httpConfig.Host, h.httpConfig.Port)

	listener, err := h.listen(addr)
	if err != nil {
		h.state.Store(StateStopped)
		return types.Errorf(types.ErrServerStartFailed, "%v", err)
	}
	h.listener = listener

	go func() {
		if err := h.server.Serve(h.listener); err != nil {
			h.logger.Error("HTTP server failed", zap.Error(err))
			h.state.Store(StateStopped)
		}
	}()

	h.state.Store(StateRunning)

	h.logger.Info("HTTP server started",
		zap.String("address", addr),
		zap.Bool("tls", h.tlsConfig.Enabled))

	return nil
}

func (h *FastHTTPServer) listen(addr string) (net.Listener, error) {
	if h.tlsConfig.Enabled {
		if h.tlsManager == nil {
			return nil, types.ErrTLSConfigInvalid
		}
		return h.tlsManager.Serve(addr)
	}
	return net.Listen("tcp", addr)
}

func (h *FastHTTPServer) Stop() error {
	if !h.state.CompareAndSwap(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		h.state.Store(StateStopped)
		h.cancel()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		default:
			return h.server.Shutdown()
		}
	})

	if err := g.Wait(); err != nil {
		select {
		case <-ctx.Done():
			h.logger.Warn("HTTP server shutdown timeout")
			return types.Errorf(types.ErrServerStopFailed, "shutdown timeout")
		default:
			return types.Errorf(types.ErrServerStopFailed, "%v", err)
		}
	}

	h.logger.Info("HTTP server stopped gracefully")
	return nil
}

func (h *FastHTTPServer) IsRunning() bool {
	return h.state.Load().(State) == StateRunning
}

// mainHandler adapts the lifecycle runner to the transport. This is the
// outermost fault boundary: whatever escapes the runner has already had the
// request context popped, so only the generic response remains to be
// written.
func (h *FastHTTPServer) mainHandler() fasthttp.RequestHandler {
	metricsHandler := h.metricsHandler()

	return func(fctx *fasthttp.RequestCtx) {
		if metricsHandler != nil && h.metricsPath == string(fctx.Path()) {
			metricsHandler(fctx)
			return
		}

		ctx := types.WrapRequestCtx(fctx)

		if err := h.runner.Serve(ctx); err != nil {
			h.logger.ErrorWithErrStack("Request failed with unhandled error", err,
				zap.ByteString("method", fctx.Method()),
				zap.ByteString("path", fctx.Path()))

			fctx.Response.Reset()
			utils.CreateErrorResponse(fctx)
		}
	}
}

func (h *FastHTTPServer) metricsHandler() fasthttp.RequestHandler {
	if h.metricsPath == "" || h.metrics == nil {
		return nil
	}
	return h.metrics.HTTPHandler()
}
