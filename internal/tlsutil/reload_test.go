package tlsutil

import (
	"testing"
	"time"
)

func TestCertReloaderPicksUpRotation(t *testing.T) {
	ca, err := GenerateCA("", 0)
	if err != nil {
		t.Fatalf("generate ca: %v", err)
	}
	first, err := ca.IssueServer(nil, "first", 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	dir := t.TempDir()
	certFile := writeFile(t, dir, "server.pem", first.CertPEM)
	keyFile := writeFile(t, dir, "server.key", first.KeyPEM)
	caFile := writeFile(t, dir, "ca.pem", ca.CertPEM)

	cfg, reloader, err := WatchServerConfig(certFile, keyFile, caFile, nil)
	if err != nil {
		t.Fatalf("watch server config: %v", err)
	}
	t.Cleanup(func() { _ = reloader.Close() })
	if cfg.ClientCAs == nil || cfg.GetCertificate == nil {
		t.Fatal("config missing material")
	}
	if got := servedCN(t, reloader); got != "first" {
		t.Fatalf("served %q", got)
	}

	second, err := ca.IssueServer(nil, "second", 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	writeFile(t, dir, "server.key", second.KeyPEM)
	writeFile(t, dir, "server.pem", second.CertPEM)

	deadline := time.Now().Add(5 * time.Second)
	for servedCN(t, reloader) != "second" {
		if time.Now().After(deadline) {
			t.Fatal("rotated certificate not picked up")
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err := reloader.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := reloader.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestCertReloaderMissingFiles(t *testing.T) {
	if _, err := NewCertReloader("/nonexistent/server.pem", "/nonexistent/server.key", nil); err == nil {
		t.Fatal("expected load error")
	}
}

func servedCN(t *testing.T, r *CertReloader) string {
	t.Helper()
	cert, err := r.GetCertificate(nil)
	if err != nil {
		t.Fatalf("get certificate: %v", err)
	}
	if cert.Leaf == nil {
		t.Fatal("certificate leaf not parsed")
	}
	return cert.Leaf.Subject.CommonName
}
