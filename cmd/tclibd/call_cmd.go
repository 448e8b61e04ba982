package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"pkt.systems/pslog"
	"pkt.systems/tclib/api"
	"pkt.systems/tclib/client"
	"pkt.systems/tclib/internal/correlation"
	"pkt.systems/tclib/internal/svcfields"
)

var callFlags = []string{"endpoint", "cert", "key", "ca", "disable-mtls", "timeout", "correlation-id"}

func newCallCommand(baseLogger pslog.Logger) *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "call <service> [type:value...]",
		Short: "Send one coordinator call to a participant and print the result",
		Long: `Send one coordinator call to a participant.

Fields are given as type:value where type is one of u8, u32, u64, str or bin
(hex encoded), e.g.

  tclibd call commit-transaction u32:7 u32:1 u32:0 u32:0 u32:1 u32:0`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := api.ParseServiceKind(args[0])
			if !ok {
				return fmt.Errorf("unknown service %q (known: %s)", args[0], serviceNames())
			}
			fields, err := client.ParseFields(args[1:])
			if err != nil {
				return err
			}
			httpClient, err := client.NewHTTPClient(client.TLSConfig{
				DisableMTLS: v.GetBool("disable-mtls"),
				CertFile:    v.GetString("cert"),
				KeyFile:     v.GetString("key"),
				CAFile:      v.GetString("ca"),
				Timeout:     v.GetDuration("timeout"),
			})
			if err != nil {
				return err
			}
			cli, err := client.New(client.Config{
				Endpoint:   v.GetString("endpoint"),
				HTTPClient: httpClient,
				Logger:     svcfields.WithSubsystem(baseLogger, "cli.call"),
			})
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if id := v.GetString("correlation-id"); id != "" {
				ctx = correlation.With(ctx, id)
			}
			resp, err := cli.Call(ctx, kind, fields...)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true
			if err := printResponse(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
			return resp.Err(kind)
		},
	}
	addClientFlags(cmd.Flags())
	if err := bindFlags(v, cmd, callFlags); err != nil {
		panic(err)
	}
	v.SetEnvPrefix(envPrefix + "_CLIENT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return cmd
}

func addClientFlags(flags *pflag.FlagSet) {
	flags.StringP("endpoint", "e", "https://127.0.0.1:9443", "participant base URL")
	flags.String("cert", "", "client certificate PEM")
	flags.String("key", "", "client private key PEM")
	flags.String("ca", "", "CA PEM the participant certificate must chain to")
	flags.Bool("disable-mtls", false, "call without a client certificate")
	flags.Duration("timeout", client.DefaultTimeout, "HTTP client timeout")
	flags.String("correlation-id", "", "correlation id to send (generated when empty)")
}

func printResponse(w io.Writer, resp *client.Response) error {
	if _, err := fmt.Fprintf(w, "result: %s\n", resp.Result); err != nil {
		return err
	}
	if resp.CorrelationID != "" {
		if _, err := fmt.Fprintf(w, "correlation_id: %s\n", resp.CorrelationID); err != nil {
			return err
		}
	}
	for i, f := range resp.Fields {
		if _, err := fmt.Fprintf(w, "field[%d]: %s\n", i, client.FormatField(f)); err != nil {
			return err
		}
	}
	return nil
}

func serviceNames() string {
	kinds := api.ServiceKinds()
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, k.String())
	}
	return strings.Join(names, ", ")
}
