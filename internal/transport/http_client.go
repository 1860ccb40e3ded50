package transport

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/relojapp/offline-worker/internal/config"
)

// NewHTTPClient constructs the outbound client shared by the installer,
// the interceptor, and the pass-through forwarder. The connection pool is
// sized for one origin plus the occasional external asset host, not for
// high-fanout proxying.
func NewHTTPClient(cfg config.Config) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: cfg.DialTimeout,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.TransportTimeout,
	}
}
