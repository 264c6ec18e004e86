package tls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/saiset-co/sai-pipeline/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

var defaultCipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
}

// CertManager provides TLS listeners from either certificate files or
// Let's Encrypt via autocert.
type CertManager struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	config          *types.TLSConfig
	autocertMgr     *autocert.Manager
	stopCh          chan struct{}
	state           atomic.Value
	renewalInterval time.Duration
}

func NewCertManager(ctx context.Context, logger types.Logger, config types.ConfigManager) (types.TLSManager, error) {
	tlsConfig := config.GetConfig().Server.TLS

	managerCtx, cancel := context.WithCancel(ctx)

	cm := &CertManager{
		ctx:             managerCtx,
		cancel:          cancel,
		logger:          logger,
		config:          tlsConfig,
		stopCh:          make(chan struct{}),
		renewalInterval: 12 * time.Hour,
	}
	cm.state.Store(StateStopped)

	if tlsConfig.AutoCert {
		if err := cm.initializeAutocert(); err != nil {
			cancel()
			return nil, types.WrapError(err, "failed to initialize autocert manager")
		}
	}

	return cm, nil
}

func (cm *CertManager) Serve(addr string) (net.Listener, error) {
	if !cm.IsRunning() {
		return nil, types.ErrServerNotRunning
	}

	tlsConfig := cm.GetTLSConfig()
	if tlsConfig == nil {
		return nil, types.Errorf(types.ErrTLSConfigInvalid, "no certificate source configured")
	}

	ln, err := tls.Listen("tcp", addr, tlsConfig)
	if err != nil {
		return nil, types.WrapError(err, "failed to create TLS listener")
	}

	return ln, nil
}

func (cm *CertManager) GetTLSConfig() *tls.Config {
	if cm.config.AutoCert {
		if cm.autocertMgr == nil {
			return nil
		}
		return &tls.Config{
			GetCertificate: cm.autocertMgr.GetCertificate,
			NextProtos:     []string{"h2", "http/1.1"},
			MinVersion:     tls.VersionTLS12,
			CipherSuites:   defaultCipherSuites,
		}
	}

	cert, err := cm.loadFileCertificate()
	if err != nil {
		cm.logger.Error("Failed to load certificate files", zap.Error(err))
		return nil
	}

	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		MinVersion:   tls.VersionTLS12,
		CipherSuites: defaultCipherSuites,
	}
}

func (cm *CertManager) Start() error {
	if !cm.state.CompareAndSwap(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	if !cm.config.AutoCert {
		if _, err := cm.loadFileCertificate(); err != nil {
			cm.state.Store(StateStopped)
			return err
		}
	} else {
		go cm.renewalMonitor()
	}

	cm.state.Store(StateRunning)
	cm.logger.Info("TLS certificate manager started",
		zap.Bool("auto_cert", cm.config.AutoCert),
		zap.Strings("domains", cm.config.Domains))

	return nil
}

func (cm *CertManager) Stop() error {
	if !cm.state.CompareAndSwap(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		cm.state.Store(StateStopped)
		cm.cancel()
	}()

	close(cm.stopCh)
	cm.logger.Info("TLS certificate manager stopped")

	return nil
}

func (cm *CertManager) IsRunning() bool {
	return cm.state.Load().(State) == StateRunning
}

func (cm *CertManager) initializeAutocert() error {
	if len(cm.config.Domains) == 0 {
		return types.Errorf(types.ErrTLSConfigInvalid, "no domains specified for automatic certificates")
	}

	cacheDir := cm.config.CacheDir
	if cacheDir == "" {
		cacheDir = ".certs"
	}

	cm.autocertMgr = &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(cm.config.Domains...),
		Cache:      autocert.DirCache(cacheDir),
		Email:      cm.config.Email,
	}

	return nil
}

func (cm *CertManager) loadFileCertificate() (*tls.Certificate, error) {
	if cm.config.CertFile == "" || cm.config.KeyFile == "" {
		return nil, types.Errorf(types.ErrTLSConfigInvalid, "cert_file or key_file not specified")
	}

	cert, err := tls.LoadX509KeyPair(cm.config.CertFile, cm.config.KeyFile)
	if err != nil {
		return nil, types.WrapError(err, "failed to load certificate files")
	}

	if err := validateCertificate(cert); err != nil {
		return nil, err
	}

	return &cert, nil
}

// renewalMonitor logs upcoming autocert expirations. Renewal itself is
// handled by autocert on demand.
func (cm *CertManager) renewalMonitor() {
	ticker := time.NewTicker(cm.renewalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cm.logger.Debug("Certificate renewal check",
				zap.Strings("domains", cm.config.Domains))
		case <-cm.stopCh:
			return
		case <-cm.ctx.Done():
			return
		}
	}
}

func validateCertificate(cert tls.Certificate) error {
	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return types.WrapError(err, "failed to parse certificate")
	}

	now := time.Now()
	if now.Before(x509Cert.NotBefore) {
		return types.Errorf(types.ErrTLSConfigInvalid, "certificate not yet valid")
	}
	if now.After(x509Cert.NotAfter) {
		return types.Errorf(types.ErrTLSConfigInvalid, "certificate expired")
	}

	return nil
}
