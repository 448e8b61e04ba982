package tclib

import (
	"testing"
	"time"
)

func TestConfigValidateDefaults(t *testing.T) {
	cfg := Config{DisableMTLS: true}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Listen != DefaultListen || cfg.ListenProto != DefaultListenProto {
		t.Fatalf("listen defaults %q %q", cfg.Listen, cfg.ListenProto)
	}
	if cfg.RPCTimeout != DefaultRPCTimeout || cfg.MaxPayloadBytes != DefaultMaxPayloadBytes {
		t.Fatalf("limits %v %d", cfg.RPCTimeout, cfg.MaxPayloadBytes)
	}
	if cfg.MaxConnections != DefaultMaxConnections || cfg.CompressThreshold != DefaultCompressThreshold {
		t.Fatalf("connection defaults %d %d", cfg.MaxConnections, cfg.CompressThreshold)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	cases := map[string]Config{
		"missing tls":     {},
		"bad proto":       {DisableMTLS: true, ListenProto: "udp"},
		"runtime metrics": {DisableMTLS: true, EnableRuntimeMetrics: true},
		"rpc timeout":     {DisableMTLS: true, RPCTimeout: -time.Second},
		"payload":         {DisableMTLS: true, MaxPayloadBytes: -1},
		"connections":     {DisableMTLS: true, MaxConnections: -1},
		"compress":        {DisableMTLS: true, CompressThreshold: -1},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	ok := Config{TLSCertFile: "c.pem", TLSKeyFile: "k.pem", ListenProto: " TCP6 "}
	if err := ok.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if ok.ListenProto != "tcp6" {
		t.Fatalf("proto %q", ok.ListenProto)
	}
}
