package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pkt.systems/pslog"
	"pkt.systems/tclib"
	"pkt.systems/tclib/api"
	"pkt.systems/tclib/internal/ackparticipant"
	"pkt.systems/tclib/internal/svcfields"
)

const envPrefix = "TCLIB"

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(
		pslog.WithEnvPrefix(envPrefix+"_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "tclibd")
	cmd := newRootCommand(baseLogger)
	ctx = withSignalCancel(ctx)
	if _, err := cmd.ExecuteContextC(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "%s\n", err)
		}
		return 1
	}
	return 0
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}

func humanizeBytes(n int64) string {
	return strings.ReplaceAll(humanize.IBytes(uint64(n)), " ", "")
}

// serveFlags lists every flag bound into viper for the serve command.
var serveFlags = []string{
	"config", "log-level",
	"listen", "listen-proto", "metrics-listen", "otlp-endpoint", "enable-runtime-metrics", "disable-tracing",
	"rpc-timeout", "max-payload", "max-connections", "compress-threshold",
	"disable-mtls", "tls-cert", "tls-key", "client-ca",
	"controller-type", "controller",
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "tclibd",
		Short:         "tclibd serves a transaction-coordinator participant that acknowledges every phase",
		SilenceErrors: true,
		Example: `
  # Plain HTTP platform participant on :9443
  tclibd --disable-mtls

  # Driver participant owning two controllers, mutual TLS
  tclibd --controller-type pfc --controller ctr1=pfc --controller ctr2=pfc \
    --tls-cert server.pem --tls-key server.key --client-ca ca.pem

  # Issue one call against a participant
  tclibd call --endpoint http://127.0.0.1:9443 --disable-mtls controller-type
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			return runServe(cmd.Context(), v, baseLogger)
		},
	}

	persistent := cmd.PersistentFlags()
	persistent.StringP("config", "c", "", "path to YAML config file")
	persistent.String("log-level", "info", "log level (trace, debug, info, warn, error)")

	flags := cmd.Flags()
	flags.String("listen", tclib.DefaultListen, "listen address")
	flags.String("listen-proto", tclib.DefaultListenProto, "listen network (tcp, tcp4, tcp6, unix)")
	flags.String("metrics-listen", tclib.DefaultMetricsListen, "Prometheus metrics listen address (empty disables)")
	flags.String("otlp-endpoint", "", "OTLP collector endpoint (e.g. grpc://localhost:4317)")
	flags.Bool("enable-runtime-metrics", false, "add Go runtime metrics to the Prometheus endpoint")
	flags.Bool("disable-tracing", false, "skip per-call spans")
	flags.Duration("rpc-timeout", tclib.DefaultRPCTimeout, "read/write timeout for calls outside the long-running families")
	flags.String("max-payload", humanizeBytes(tclib.DefaultMaxPayloadBytes), "maximum request payload size")
	flags.Int("max-connections", tclib.DefaultMaxConnections, "maximum concurrent coordinator connections")
	flags.String("compress-threshold", humanizeBytes(tclib.DefaultCompressThreshold), "smallest response compressed with zstd")
	flags.Bool("disable-mtls", false, "serve plain HTTP without client certificates")
	flags.String("tls-cert", "", "server certificate PEM")
	flags.String("tls-key", "", "server private key PEM")
	flags.String("client-ca", "", "CA PEM that coordinator client certificates must chain to")
	flags.String("controller-type", api.ControllerUnknown.String(), "own controller type (unknown makes a platform participant)")
	flags.StringSlice("controller", nil, "controller ownership as id=driver (repeatable)")

	if err := bindFlags(v, cmd, serveFlags); err != nil {
		panic(err)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd.AddCommand(newCallCommand(baseLogger))
	cmd.AddCommand(newConfigCommand())
	cmd.AddCommand(newCertsCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func bindFlags(v *viper.Viper, cmd *cobra.Command, names []string) error {
	for _, name := range names {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			flag = cmd.PersistentFlags().Lookup(name)
		}
		if flag == nil {
			return fmt.Errorf("flag %q not found", name)
		}
		if err := v.BindPFlag(name, flag); err != nil {
			return err
		}
	}
	return nil
}

func runServe(ctx context.Context, v *viper.Viper, baseLogger pslog.Logger) error {
	configFile, err := loadConfigFile(v)
	if err != nil {
		return err
	}
	logger := baseLogger
	if level, ok := pslog.ParseLevel(strings.TrimSpace(v.GetString("log-level"))); ok {
		logger = logger.LogLevel(level)
	}
	cliLogger := svcfields.WithSubsystem(logger, "cli.serve")
	if configFile != "" {
		cliLogger.Info("cli.config.loaded", "path", configFile)
	}
	cfg, err := bindConfig(v)
	if err != nil {
		return err
	}
	ack, err := ackConfig(v)
	if err != nil {
		return err
	}
	ack.Logger = logger

	srv, err := tclib.NewServer(cfg, tclib.WithLogger(logger))
	if err != nil {
		return err
	}
	participant := ackparticipant.New(srv.Engine(), ack)
	if err := srv.Engine().Register(participant); err != nil {
		_ = srv.Close()
		return err
	}
	cliLogger.Info("cli.serve.start",
		"pid", os.Getpid(),
		"role", api.RoleOf(ack.ControllerType),
		"controller_type", ack.ControllerType,
		"controllers", len(ack.Controllers),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	select {
	case err := <-errCh:
		_ = srv.Close()
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), tclib.DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		cliLogger.Error("cli.serve.shutdown_failed", "error", err)
		return err
	}
	return <-errCh
}

func loadConfigFile(v *viper.Viper) (string, error) {
	path := strings.TrimSpace(v.GetString("config"))
	if path == "" {
		return "", nil
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", path, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}
	v.SetConfigFile(expanded)
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return expanded, nil
}

func expandPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return filepath.Abs(os.ExpandEnv(p))
}

func bindConfig(v *viper.Viper) (tclib.Config, error) {
	cfg := tclib.Config{
		Listen:               v.GetString("listen"),
		ListenProto:          v.GetString("listen-proto"),
		MetricsListen:        v.GetString("metrics-listen"),
		OTLPEndpoint:         v.GetString("otlp-endpoint"),
		EnableRuntimeMetrics: v.GetBool("enable-runtime-metrics"),
		DisableTracing:       v.GetBool("disable-tracing"),
		RPCTimeout:           v.GetDuration("rpc-timeout"),
		MaxConnections:       v.GetInt("max-connections"),
		DisableMTLS:          v.GetBool("disable-mtls"),
		TLSCertFile:          v.GetString("tls-cert"),
		TLSKeyFile:           v.GetString("tls-key"),
		ClientCAFile:         v.GetString("client-ca"),
	}
	maxPayload, err := parseSize(v, "max-payload")
	if err != nil {
		return cfg, err
	}
	cfg.MaxPayloadBytes = maxPayload
	threshold, err := parseSize(v, "compress-threshold")
	if err != nil {
		return cfg, err
	}
	cfg.CompressThreshold = int(threshold)
	return cfg, cfg.Validate()
}

func parseSize(v *viper.Viper, key string) (int64, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}
	size, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return int64(size), nil
}

func ackConfig(v *viper.Viper) (ackparticipant.Config, error) {
	name := strings.ToLower(strings.TrimSpace(v.GetString("controller-type")))
	ct, ok := api.ParseControllerType(name)
	if !ok {
		return ackparticipant.Config{}, fmt.Errorf("unknown controller type %q", name)
	}
	controllers, err := ackparticipant.ParseControllers(v.GetStringSlice("controller"))
	if err != nil {
		return ackparticipant.Config{}, err
	}
	return ackparticipant.Config{ControllerType: ct, Controllers: controllers}, nil
}
