package tclib

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"pkt.systems/pslog"
	"pkt.systems/tclib/internal/httpapi"
	"pkt.systems/tclib/internal/svcfields"
	"pkt.systems/tclib/internal/tlsutil"
	"pkt.systems/tclib/participant"
)

// Server hosts one participant engine behind the HTTP transport.
type Server struct {
	cfg       Config
	logger    pslog.Logger
	engine    *participant.Engine
	httpSrv   *http.Server
	telemetry *telemetry
	reloader  *tlsutil.CertReloader

	mu           sync.Mutex
	listener     net.Listener
	socketPath   string
	shutdown     bool
	lastServeErr error
	readyOnce    sync.Once
	readyCh      chan struct{}
}

// Option configures server instances.
type Option func(*options)

type options struct {
	logger    pslog.Logger
	callbacks participant.Callbacks
	tlsConfig *tls.Config
	otlp      string
}

// WithLogger supplies the base logger.
func WithLogger(l pslog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCallbacks registers cb on the engine during construction.
func WithCallbacks(cb participant.Callbacks) Option {
	return func(o *options) { o.callbacks = cb }
}

// WithTLSConfig serves with cfg instead of loading certificate files.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *options) { o.tlsConfig = cfg }
}

// WithOTLPEndpoint overrides the OTLP collector endpoint.
func WithOTLPEndpoint(endpoint string) Option {
	return func(o *options) { o.otlp = endpoint }
}

// NewServer constructs a participant server according to cfg.
func NewServer(cfg Config, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.otlp != "" {
		cfg.OTLPEndpoint = o.otlp
	}
	// Certificate files are optional when the TLS material is supplied directly.
	cfg.DisableMTLS = cfg.DisableMTLS || o.tlsConfig != nil
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if o.tlsConfig != nil {
		cfg.DisableMTLS = false
	}
	logger := o.logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}

	tlsConfig := o.tlsConfig
	var reloader *tlsutil.CertReloader
	if tlsConfig == nil && !cfg.DisableMTLS {
		var err error
		tlsConfig, reloader, err = tlsutil.WatchServerConfig(cfg.TLSCertFile, cfg.TLSKeyFile, cfg.ClientCAFile,
			svcfields.WithSubsystem(logger, "tclib.tls"))
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	if tlsConfig != nil && tlsConfig.ClientAuth != tls.RequireAndVerifyClientCert {
		logger.Warn("server.tls.client_auth_disabled", "impact", "any client with network access can drive the participant")
	}

	tel, err := setupTelemetry(context.Background(), cfg, svcfields.WithSubsystem(logger, "tclib.telemetry"))
	if err != nil {
		_ = reloader.Close()
		return nil, err
	}

	engine := participant.New(participant.Config{Logger: logger})
	if o.callbacks != nil {
		if err := engine.Register(o.callbacks); err != nil {
			_ = tel.Shutdown(context.Background())
			_ = reloader.Close()
			return nil, err
		}
	}
	handler := httpapi.New(httpapi.Config{
		Dispatcher:        engine,
		Logger:            logger,
		MaxPayloadBytes:   cfg.MaxPayloadBytes,
		CompressThreshold: cfg.CompressThreshold,
		DisableTracing:    cfg.DisableTracing,
	})
	mux := http.NewServeMux()
	handler.Register(mux)

	httpLogger := svcfields.WithSubsystem(logger, "tclib.http.server")
	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: cfg.RPCTimeout,
		ReadTimeout:       cfg.RPCTimeout,
		WriteTimeout:      cfg.RPCTimeout,
		TLSConfig:         tlsConfig,
		ErrorLog:          log.New(errorLogWriter{logger: httpLogger}, "", 0),
		BaseContext: func(net.Listener) context.Context {
			return context.Background()
		},
	}
	return &Server{
		cfg:       cfg,
		logger:    svcfields.WithSubsystem(logger, "tclib.server"),
		engine:    engine,
		httpSrv:   httpSrv,
		telemetry: tel,
		reloader:  reloader,
		readyCh:   make(chan struct{}),
	}, nil
}

// errorLogWriter forwards net/http's internal error log to pslog.
type errorLogWriter struct {
	logger pslog.Logger
}

func (w errorLogWriter) Write(p []byte) (int, error) {
	w.logger.Warn("http.server.error", "detail", strings.TrimSpace(string(p)))
	return len(p), nil
}

// Engine returns the participant engine so callers can register callbacks
// and use the response helpers.
func (s *Server) Engine() *participant.Engine {
	return s.engine
}

// Handler returns the HTTP handler for mounting inside another server.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start listens and serves until the server is shut down.
func (s *Server) Start() error {
	if s.cfg.ListenProto == "unix" {
		if err := os.Remove(s.cfg.Listen); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale unix socket: %w", err)
		}
	}
	ln, err := net.Listen(s.cfg.ListenProto, s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen (%s %s): %w", s.cfg.ListenProto, s.cfg.Listen, err)
	}
	ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		_ = ln.Close()
		return nil
	}
	s.listener = ln
	if s.cfg.ListenProto == "unix" {
		s.socketPath = s.cfg.Listen
	}
	s.mu.Unlock()
	s.signalReady()
	s.logger.Info("server.listening",
		"network", s.cfg.ListenProto,
		"address", ln.Addr().String(),
		"mtls", s.httpSrv.TLSConfig != nil,
		"max_connections", s.cfg.MaxConnections,
	)

	var serveErr error
	if s.httpSrv.TLSConfig != nil {
		serveErr = s.httpSrv.ServeTLS(ln, "", "")
	} else {
		serveErr = s.httpSrv.Serve(ln)
	}
	s.recordServeErr(serveErr)
	if serveErr == nil || errors.Is(serveErr, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("http serve: %w", serveErr)
}

// Shutdown gracefully stops the server. The participant's in-flight session,
// if any, is released so a restarted server begins from phase NONE.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	socketPath := s.socketPath
	s.mu.Unlock()
	s.signalReady()

	var errs []error
	if err := s.httpSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	s.engine.Release()
	if err := s.reloader.Close(); err != nil {
		errs = append(errs, fmt.Errorf("tls watcher: %w", err))
	}
	if s.telemetry != nil {
		telemetryCtx := ctx
		if telemetryCtx.Err() != nil {
			var cancel context.CancelFunc
			telemetryCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
		}
		if err := s.telemetry.Shutdown(telemetryCtx); err != nil {
			errs = append(errs, err)
		}
	}
	if socketPath != "" {
		if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := s.LastServeError(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.Info("server.shutdown.complete")
	return nil
}

// Close shuts the server down using a background context.
func (s *Server) Close() error {
	return s.Shutdown(context.Background())
}

func (s *Server) signalReady() {
	s.readyOnce.Do(func() {
		close(s.readyCh)
	})
}

// WaitUntilReady blocks until the listener is bound or ctx ends.
func (s *Server) WaitUntilReady(ctx context.Context) error {
	select {
	case <-s.readyCh:
		if s.ListenerAddr() == nil {
			return errors.New("server stopped before listening")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListenerAddr returns the bound listener address once available.
func (s *Server) ListenerAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// MetricsAddr returns the bound Prometheus listener, if metrics are enabled.
func (s *Server) MetricsAddr() net.Addr {
	return s.telemetry.MetricsAddr()
}

func (s *Server) recordServeErr(err error) {
	s.mu.Lock()
	s.lastServeErr = err
	s.mu.Unlock()
}

// LastServeError returns the error the serve loop ended with.
func (s *Server) LastServeError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastServeErr
}

// StartServer constructs and starts a server, waits until it listens, and
// returns it together with a stop function. Cancelling ctx also stops it.
func StartServer(ctx context.Context, cfg Config, opts ...Option) (*Server, func(context.Context) error, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	srv, err := NewServer(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	errCh := make(chan error, 1)
	go func() {
		err := srv.Start()
		if err != nil {
			srv.signalReady()
		}
		errCh <- err
	}()
	if err := srv.WaitUntilReady(ctx); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		if startErr := <-errCh; startErr != nil {
			return nil, nil, startErr
		}
		return nil, nil, err
	}
	var (
		stopOnce sync.Once
		stopErr  error
	)
	stop := func(shutdownCtx context.Context) error {
		stopOnce.Do(func() {
			if shutdownCtx == nil {
				shutdownCtx = context.Background()
			}
			if err := srv.Shutdown(shutdownCtx); err != nil {
				stopErr = err
			}
			if err := <-errCh; err != nil && stopErr == nil {
				stopErr = err
			}
		})
		return stopErr
	}
	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
			defer cancel()
			_ = stop(shutdownCtx)
		}()
	}
	return srv, stop, nil
}
