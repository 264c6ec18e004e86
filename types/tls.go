package types

import (
	"crypto/tls"
	"net"
)

type TLSManager interface {
	LifecycleManager
	// Serve wraps addr in a TLS listener using the configured certificate
	// source, file-based or ACME.
	Serve(addr string) (net.Listener, error)
	GetTLSConfig() *tls.Config
}
