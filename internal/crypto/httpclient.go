package crypto

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"claimant-consumer/pkg/circuitbreaker"
)

// HTTPClientConfig configures the client used towards the data key service.
type HTTPClientConfig struct {
	Timeout        time.Duration
	ConnectTimeout time.Duration
	CertFile       string
	KeyFile        string
	CAFile         string
}

// NewHTTPClient builds an HTTP client with fixed connect and response
// timeouts, presenting a client certificate when one is configured.
func NewHTTPClient(cfg HTTPClientConfig) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = cfg.ConnectTimeout
	transport.ResponseHeaderTimeout = cfg.Timeout

	tlsConfig, err := TLSConfig(cfg.CertFile, cfg.KeyFile, cfg.CAFile)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		transport.TLSClientConfig = tlsConfig
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}, nil
}

// TLSConfig loads PEM client credentials and an optional CA bundle. It
// returns nil when nothing is configured.
func TLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	if certFile == "" && caFile == "" {
		return nil, nil
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if certFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if caFile != "" {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", caFile)
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}

// DataKeyBreakerConfig trips only on unavailability. Declines are answers,
// not faults.
func DataKeyBreakerConfig(cfg circuitbreaker.Config) circuitbreaker.Config {
	cfg.IsSuccessful = func(err error) bool {
		var decline *DataKeyDecline
		return err == nil || errors.As(err, &decline)
	}
	return cfg
}
