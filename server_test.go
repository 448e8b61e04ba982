package tclib

import (
	"context"
	"net/http"
	"testing"
	"time"

	"pkt.systems/tclib/api"
	"pkt.systems/tclib/client"
	"pkt.systems/tclib/participant"
	"pkt.systems/tclib/session"
)

func startTestServer(t *testing.T, cfg Config, opts ...Option) *Server {
	t.Helper()
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:0"
	}
	cfg.DisableMTLS = true
	cfg.DisableTracing = true
	srv, stop, err := StartServer(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := stop(ctx); err != nil {
			t.Errorf("stop: %v", err)
		}
	})
	return srv
}

func TestServerServesCalls(t *testing.T) {
	srv := startTestServer(t, Config{}, WithCallbacks(participant.NopCallbacks{}))
	cli, err := client.New(client.Config{Endpoint: "http://" + srv.ListenerAddr().String()})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	ctx := context.Background()
	if err := cli.Health(ctx); err != nil {
		t.Fatalf("health: %v", err)
	}
	resp, err := cli.Call(ctx, api.ServiceCommitTransaction,
		session.Uint32(uint32(api.PhaseCommitTransStart)),
		session.Uint32(1), session.Uint32(1), session.Uint32(uint32(api.ConfigGlobal)), session.String(""))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	// No notify-session-config preceded the start, so the scope is unknown.
	if resp.Result != api.ResultInvalidSessionID {
		t.Fatalf("result %s", resp.Result)
	}
	if srv.Engine().Phase() != api.PhaseNone {
		t.Fatalf("phase %s after rejected start", srv.Engine().Phase())
	}
}

func TestServerRegisterLater(t *testing.T) {
	srv := startTestServer(t, Config{})
	cli, _ := client.New(client.Config{Endpoint: "http://" + srv.ListenerAddr().String()})
	if err := cli.Health(context.Background()); err == nil {
		t.Fatal("health succeeded before registration")
	}
	if err := srv.Engine().Register(participant.NopCallbacks{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := cli.Health(context.Background()); err != nil {
		t.Fatalf("health after registration: %v", err)
	}
}

func TestServerMetricsEndpoint(t *testing.T) {
	srv := startTestServer(t, Config{MetricsListen: "127.0.0.1:0"}, WithCallbacks(participant.NopCallbacks{}))
	addr := srv.MetricsAddr()
	if addr == nil {
		t.Fatal("metrics listener not bound")
	}
	resp, err := http.Get("http://" + addr.String() + "/metrics")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("scrape status %d", resp.StatusCode)
	}
}

func TestStartServerListenError(t *testing.T) {
	first := startTestServer(t, Config{})
	_, _, err := StartServer(context.Background(), Config{Listen: first.ListenerAddr().String(), DisableMTLS: true})
	if err == nil {
		t.Fatal("expected listen error on occupied address")
	}
}

func TestShutdownIdempotent(t *testing.T) {
	srv, err := NewServer(Config{Listen: "127.0.0.1:0", DisableMTLS: true})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("start after shutdown: %v", err)
	}
	if err := srv.WaitUntilReady(context.Background()); err == nil {
		t.Fatal("ready after shutdown")
	}
}
