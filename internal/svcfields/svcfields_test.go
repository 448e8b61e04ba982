package svcfields

import "testing"

func TestSubsystem(t *testing.T) {
	cases := map[string][]string{
		"":                  nil,
		"tclib":             {"tclib", "", " . "},
		"tclib.http.server": {".tclib.", "http", "server."},
	}
	for want, parts := range cases {
		if got := Subsystem(parts...); got != want {
			t.Fatalf("Subsystem(%q) = %q, want %q", parts, got, want)
		}
	}
}

func TestNilLoggers(t *testing.T) {
	if WithSubsystem(nil, "tclib") == nil {
		t.Fatal("WithSubsystem returned nil")
	}
	if WithCall(nil, "", "", "") == nil {
		t.Fatal("WithCall returned nil")
	}
}
