package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pkt.systems/pslog"
	"pkt.systems/tclib"
	"pkt.systems/tclib/api"
	"pkt.systems/tclib/internal/ackparticipant"
	"pkt.systems/tclib/internal/version"
)

func executeRootCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(pslog.NoopLogger())
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestVersionCommand(t *testing.T) {
	stdout, err := executeRootCommand(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	info := version.Get()
	if want := info.Module + " " + info.Version + "\n"; stdout != want {
		t.Fatalf("stdout %q want %q", stdout, want)
	}

	stdout, err = executeRootCommand(t, "version", "--verbose")
	if err != nil {
		t.Fatalf("version --verbose: %v", err)
	}
	var decoded version.Info
	if err := yaml.Unmarshal([]byte(stdout), &decoded); err != nil {
		t.Fatalf("decode verbose output: %v", err)
	}
	if decoded.GoVersion != info.GoVersion {
		t.Fatalf("go version %q want %q", decoded.GoVersion, info.GoVersion)
	}
}

func TestConfigGenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "tclibd.yaml")
	if _, err := executeRootCommand(t, "config", "gen", "--out", out); err != nil {
		t.Fatalf("config gen: %v", err)
	}
	if _, err := executeRootCommand(t, "config", "gen", "--out", out); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected refusal to overwrite, got %v", err)
	}
	if _, err := executeRootCommand(t, "config", "gen", "--out", out, "--force"); err != nil {
		t.Fatalf("config gen --force: %v", err)
	}
	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode %v", info.Mode().Perm())
	}

	v := viper.New()
	v.Set("config", out)
	if _, err := loadConfigFile(v); err != nil {
		t.Fatalf("load config: %v", err)
	}
	v.Set("disable-mtls", true)
	cfg, err := bindConfig(v)
	if err != nil {
		t.Fatalf("bind config: %v", err)
	}
	if cfg.Listen != tclib.DefaultListen || cfg.RPCTimeout != tclib.DefaultRPCTimeout {
		t.Fatalf("listen %q timeout %v", cfg.Listen, cfg.RPCTimeout)
	}
	if cfg.MaxPayloadBytes != tclib.DefaultMaxPayloadBytes {
		t.Fatalf("max payload %d", cfg.MaxPayloadBytes)
	}
	if cfg.CompressThreshold != tclib.DefaultCompressThreshold {
		t.Fatalf("compress threshold %d", cfg.CompressThreshold)
	}
}

func TestConfigGenStdoutExclusive(t *testing.T) {
	if _, err := executeRootCommand(t, "config", "gen", "--stdout", "--out", "x.yaml"); err == nil {
		t.Fatal("expected --stdout and --out to conflict")
	}
	stdout, err := executeRootCommand(t, "config", "gen", "--stdout")
	if err != nil {
		t.Fatalf("config gen --stdout: %v", err)
	}
	if !strings.Contains(stdout, "listen: "+tclib.DefaultListen) {
		t.Fatalf("unexpected output:\n%s", stdout)
	}
}

func TestBindConfigErrors(t *testing.T) {
	cases := map[string]map[string]any{
		"bad size":      {"max-payload": "lots", "disable-mtls": true},
		"missing certs": {"disable-mtls": false},
		"bad proto":     {"listen-proto": "udp", "disable-mtls": true},
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			v := viper.New()
			for k, val := range values {
				v.Set(k, val)
			}
			if _, err := bindConfig(v); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestAckConfig(t *testing.T) {
	v := viper.New()
	v.Set("controller-type", "PFC")
	v.Set("controller", []string{"ctr1=pfc", "ctr2=vnp"})
	cfg, err := ackConfig(v)
	if err != nil {
		t.Fatalf("ack config: %v", err)
	}
	if cfg.ControllerType != api.ControllerPFC || cfg.Controllers["ctr2"] != api.ControllerVNP {
		t.Fatalf("unexpected config %+v", cfg)
	}

	v.Set("controller-type", "toaster")
	if _, err := ackConfig(v); err == nil {
		t.Fatal("expected unknown controller type error")
	}
}

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	got, err := expandPath("~/cfg.yaml")
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if got != filepath.Join(home, "cfg.yaml") {
		t.Fatalf("got %q", got)
	}
}

func TestCertsGen(t *testing.T) {
	dir := t.TempDir()
	stdout, err := executeRootCommand(t, "certs", "gen", "--dir", dir, "--host", "participant.test")
	if err != nil {
		t.Fatalf("certs gen: %v", err)
	}
	for _, name := range []string{"ca.pem", "ca.key", "server.pem", "server.key", "client.pem", "client.key"} {
		if !strings.Contains(stdout, name) {
			t.Fatalf("output missing %s:\n%s", name, stdout)
		}
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("stat %s: %v", name, err)
		}
	}
	if _, err := executeRootCommand(t, "certs", "gen", "--dir", dir); err == nil {
		t.Fatal("expected refusal to overwrite")
	}

	v := viper.New()
	v.Set("tls-cert", filepath.Join(dir, "server.pem"))
	v.Set("tls-key", filepath.Join(dir, "server.key"))
	v.Set("client-ca", filepath.Join(dir, "ca.pem"))
	cfg, err := bindConfig(v)
	if err != nil {
		t.Fatalf("bind config: %v", err)
	}
	cfg.Listen = "127.0.0.1:0"
	srv, err := tclib.NewServer(cfg)
	if err != nil {
		t.Fatalf("server with generated certs: %v", err)
	}
	_ = srv.Close()
}

func TestCallCommand(t *testing.T) {
	srv, stop, err := tclib.StartServer(context.Background(), tclib.Config{
		Listen:         "127.0.0.1:0",
		DisableMTLS:    true,
		DisableTracing: true,
	})
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = stop(ctx)
	})
	ack := ackparticipant.New(srv.Engine(), ackparticipant.Config{
		ControllerType: api.ControllerPFC,
		Controllers:    map[string]api.ControllerType{"ctr1": api.ControllerPFC},
	})
	if err := srv.Engine().Register(ack); err != nil {
		t.Fatalf("register: %v", err)
	}
	endpoint := "http://" + srv.ListenerAddr().String()

	stdout, err := executeRootCommand(t, "call", "--endpoint", endpoint, "--disable-mtls",
		"--correlation-id", "cli-test", "get-driver-id", "str:ctr1")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	for _, want := range []string{"result: ok", "correlation_id: cli-test", "field[0]: u32:1"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("output missing %q:\n%s", want, stdout)
		}
	}

	if _, err := executeRootCommand(t, "call", "--endpoint", endpoint, "--disable-mtls", "no-such-service"); err == nil {
		t.Fatal("expected unknown service error")
	}
	if _, err := executeRootCommand(t, "call", "--endpoint", endpoint, "--disable-mtls", "setup", "f64:1"); err == nil {
		t.Fatal("expected field parse error")
	}
}
