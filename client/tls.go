package client

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"pkt.systems/tclib/internal/tlsutil"
)

// TLSConfig configures NewHTTPClient.
type TLSConfig struct {
	// DisableMTLS dials plain HTTP or HTTPS without a client certificate.
	DisableMTLS bool
	CertFile    string
	KeyFile     string
	// CAFile verifies the participant's certificate.
	CAFile  string
	Timeout time.Duration
}

// NewHTTPClient builds an HTTP client that presents a client certificate and
// verifies participants against CAFile.
func NewHTTPClient(cfg TLSConfig) (*http.Client, error) {
	transport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return nil, errors.New("tclib client: http transport unexpected type")
	}
	tr := transport.Clone()
	if cfg.DisableMTLS {
		tr.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	} else {
		if cfg.CertFile == "" || cfg.KeyFile == "" {
			return nil, errors.New("tclib client: client certificate and key required for mTLS")
		}
		tlsCfg, err := tlsutil.ClientConfig(cfg.CertFile, cfg.KeyFile, cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("tclib client: %w", err)
		}
		tr.TLSClientConfig = tlsCfg
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout, Transport: tr}, nil
}
