package tclib

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultListen is the default TCP endpoint the participant binds to.
	DefaultListen = ":9443"
	// DefaultListenProto is the network used when none is configured.
	DefaultListenProto = "tcp"
	// DefaultMetricsListen is the Prometheus scrape endpoint. Empty disables
	// metrics unless explicitly configured.
	DefaultMetricsListen = ""
	// DefaultRPCTimeout bounds reading a request and writing its response.
	// Long-running service families clear it per call.
	DefaultRPCTimeout = 30 * time.Second
	// DefaultMaxPayloadBytes bounds a decoded request body.
	DefaultMaxPayloadBytes = 8 << 20
	// DefaultMaxConnections caps concurrent coordinator connections.
	DefaultMaxConnections = 256
	// DefaultCompressThreshold is the smallest response body sent zstd
	// encoded to coordinators that accept it.
	DefaultCompressThreshold = 4 << 10
	// DefaultShutdownTimeout bounds graceful shutdown in StartServer.
	DefaultShutdownTimeout = 10 * time.Second
)

// Config configures a participant Server.
type Config struct {
	Listen      string
	ListenProto string

	MetricsListen        string
	OTLPEndpoint         string
	EnableRuntimeMetrics bool
	// DisableTracing skips per-call spans even when a tracer is configured.
	DisableTracing bool

	RPCTimeout        time.Duration
	MaxPayloadBytes   int64
	MaxConnections    int
	CompressThreshold int

	// DisableMTLS serves plain HTTP. Otherwise TLSCertFile and TLSKeyFile
	// are required and ClientCAFile, when set, enforces client certificates.
	DisableMTLS  bool
	TLSCertFile  string
	TLSKeyFile   string
	ClientCAFile string
}

// Validate applies defaults and checks the configuration.
func (c *Config) Validate() error {
	c.Listen = strings.TrimSpace(c.Listen)
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	c.ListenProto = strings.ToLower(strings.TrimSpace(c.ListenProto))
	if c.ListenProto == "" {
		c.ListenProto = DefaultListenProto
	}
	switch c.ListenProto {
	case "tcp", "tcp4", "tcp6", "unix":
	default:
		return fmt.Errorf("config: unsupported listen proto %q", c.ListenProto)
	}
	if c.EnableRuntimeMetrics && strings.TrimSpace(c.MetricsListen) == "" {
		return errors.New("config: runtime metrics require metrics-listen")
	}
	if c.RPCTimeout == 0 {
		c.RPCTimeout = DefaultRPCTimeout
	} else if c.RPCTimeout < 0 {
		return errors.New("config: rpc timeout must be >= 0")
	}
	if c.MaxPayloadBytes == 0 {
		c.MaxPayloadBytes = DefaultMaxPayloadBytes
	} else if c.MaxPayloadBytes < 0 {
		return errors.New("config: max payload bytes must be >= 0")
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = DefaultMaxConnections
	} else if c.MaxConnections < 0 {
		return errors.New("config: max connections must be >= 0")
	}
	if c.CompressThreshold == 0 {
		c.CompressThreshold = DefaultCompressThreshold
	} else if c.CompressThreshold < 0 {
		return errors.New("config: compress threshold must be >= 0")
	}
	if !c.DisableMTLS {
		if c.TLSCertFile == "" || c.TLSKeyFile == "" {
			return errors.New("config: tls cert and key are required unless mTLS is disabled")
		}
	}
	return nil
}
