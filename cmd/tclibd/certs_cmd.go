package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/tclib/internal/tlsutil"
)

func newCertsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "certs",
		Short: "Manage development certificates for mutual TLS",
	}
	cmd.AddCommand(newCertsGenCommand())
	return cmd
}

func newCertsGenCommand() *cobra.Command {
	var (
		dir      string
		hosts    []string
		clientCN string
		validity time.Duration
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate a CA, a participant server certificate and a coordinator client certificate",
		Example: `
  tclibd certs gen --dir ~/.tclib --host tc-participant.local
  tclibd --tls-cert ~/.tclib/server.pem --tls-key ~/.tclib/server.key --client-ca ~/.tclib/ca.pem
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				d, err := defaultConfigDir()
				if err != nil {
					return fmt.Errorf("resolve certificate dir: %w", err)
				}
				dir = d
			}
			expanded, err := expandPath(dir)
			if err != nil {
				return err
			}
			files, err := generateCertificates(hosts, clientCN, validity)
			if err != nil {
				return err
			}
			if err := writeCertificates(expanded, files, force); err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", filepath.Join(expanded, f.name))
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&dir, "dir", "", "output directory (defaults to $HOME/.tclib)")
	flags.StringSliceVar(&hosts, "host", nil, "server certificate DNS names or IPs (default localhost, 127.0.0.1, ::1)")
	flags.StringVar(&clientCN, "client-cn", "tclib-coordinator", "common name of the coordinator client certificate")
	flags.DurationVar(&validity, "validity", 0, "leaf certificate validity (default one year)")
	flags.BoolVar(&force, "force", false, "overwrite existing files")
	return cmd
}

type pemFile struct {
	name string
	data []byte
	mode os.FileMode
}

func generateCertificates(hosts []string, clientCN string, validity time.Duration) ([]pemFile, error) {
	ca, err := tlsutil.GenerateCA("", 0)
	if err != nil {
		return nil, err
	}
	server, err := ca.IssueServer(hosts, "", validity)
	if err != nil {
		return nil, err
	}
	clientCert, err := ca.IssueClient(clientCN, validity)
	if err != nil {
		return nil, err
	}
	return []pemFile{
		{name: "ca.pem", data: ca.CertPEM, mode: 0o644},
		{name: "ca.key", data: ca.KeyPEM, mode: 0o600},
		{name: "server.pem", data: server.CertPEM, mode: 0o644},
		{name: "server.key", data: server.KeyPEM, mode: 0o600},
		{name: "client.pem", data: clientCert.CertPEM, mode: 0o644},
		{name: "client.key", data: clientCert.KeyPEM, mode: 0o600},
	}, nil
}

func writeCertificates(dir string, files []pemFile, force bool) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create certificate dir: %w", err)
	}
	if !force {
		for _, f := range files {
			path := filepath.Join(dir, f.name)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("stat %s: %w", path, err)
			}
		}
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f.name), f.data, f.mode); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	return nil
}
