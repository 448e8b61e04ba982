package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pkt.systems/tclib"
	"pkt.systems/tclib/api"
)

const defaultConfigFileName = "config.yaml"

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".tclib"), nil
}

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage tclibd configuration files",
	}
	cmd.AddCommand(newConfigGenCommand())
	return cmd
}

func newConfigGenCommand() *cobra.Command {
	var outPath string
	var force bool
	var stdout bool
	defaultOutput := "$HOME/.tclib/" + defaultConfigFileName
	if dir, err := defaultConfigDir(); err == nil {
		defaultOutput = filepath.Join(dir, defaultConfigFileName)
	}

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate a default tclibd configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if stdout && outPath != "" {
				return errors.New("--stdout and --out are mutually exclusive")
			}
			data, err := defaultConfigYAML()
			if err != nil {
				return err
			}
			if stdout {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if outPath == "" {
				dir, err := defaultConfigDir()
				if err != nil {
					return fmt.Errorf("resolve config dir: %w", err)
				}
				outPath = filepath.Join(dir, defaultConfigFileName)
			}
			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				return fmt.Errorf("create config dir: %w", err)
			}
			if !force {
				if _, err := os.Stat(outPath); err == nil {
					return fmt.Errorf("config file %s already exists (use --force to overwrite)", outPath)
				} else if !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("stat config file: %w", err)
				}
			}
			if err := os.WriteFile(outPath, data, 0o600); err != nil {
				return fmt.Errorf("write config file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote default config to %s\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", fmt.Sprintf("output path for generated config (defaults to %s)", defaultOutput))
	cmd.Flags().BoolVar(&force, "force", false, "overwrite the target file if it already exists")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "print the config to stdout instead of writing a file")
	return cmd
}

// configDefaults mirrors the serve flags; keys match flag names so viper
// reads the generated file directly.
type configDefaults struct {
	Listen               string   `yaml:"listen"`
	ListenProto          string   `yaml:"listen-proto"`
	MetricsListen        string   `yaml:"metrics-listen"`
	OTLPEndpoint         string   `yaml:"otlp-endpoint"`
	EnableRuntimeMetrics bool     `yaml:"enable-runtime-metrics"`
	DisableTracing       bool     `yaml:"disable-tracing"`
	RPCTimeout           string   `yaml:"rpc-timeout"`
	MaxPayload           string   `yaml:"max-payload"`
	MaxConnections       int      `yaml:"max-connections"`
	CompressThreshold    string   `yaml:"compress-threshold"`
	DisableMTLS          bool     `yaml:"disable-mtls"`
	TLSCert              string   `yaml:"tls-cert"`
	TLSKey               string   `yaml:"tls-key"`
	ClientCA             string   `yaml:"client-ca"`
	ControllerType       string   `yaml:"controller-type"`
	Controllers          []string `yaml:"controller"`
	LogLevel             string   `yaml:"log-level"`
}

func defaultConfigYAML() ([]byte, error) {
	defaults := configDefaults{
		Listen:            tclib.DefaultListen,
		ListenProto:       tclib.DefaultListenProto,
		MetricsListen:     tclib.DefaultMetricsListen,
		RPCTimeout:        tclib.DefaultRPCTimeout.String(),
		MaxPayload:        humanizeBytes(tclib.DefaultMaxPayloadBytes),
		MaxConnections:    tclib.DefaultMaxConnections,
		CompressThreshold: humanizeBytes(tclib.DefaultCompressThreshold),
		ControllerType:    api.ControllerUnknown.String(),
		Controllers:       []string{},
		LogLevel:          "info",
	}
	if dir, err := defaultConfigDir(); err == nil {
		defaults.TLSCert = filepath.Join(dir, "server.pem")
		defaults.TLSKey = filepath.Join(dir, "server.key")
		defaults.ClientCA = filepath.Join(dir, "ca.pem")
	}
	data, err := yaml.Marshal(defaults)
	if err != nil {
		return nil, fmt.Errorf("marshal default config: %w", err)
	}
	return data, nil
}
