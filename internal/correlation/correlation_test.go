package correlation

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/xid"
)

func TestNormalize(t *testing.T) {
	if got, ok := Normalize("  tc-42  "); !ok || got != "tc-42" {
		t.Fatalf("Normalize trimmed = %q %v", got, ok)
	}
	for _, bad := range []string{"", "   ", strings.Repeat("a", MaxIDLength+1), "bad\x01id"} {
		if _, ok := Normalize(bad); ok {
			t.Fatalf("Normalize(%q) accepted", bad)
		}
	}
}

func TestWithAndID(t *testing.T) {
	ctx := context.Background()
	if ID(ctx) != "" {
		t.Fatal("empty context has an id")
	}
	if ID(With(ctx, "\x00")) != "" {
		t.Fatal("invalid id stored")
	}
	ctx = With(ctx, "abc")
	if ID(ctx) != "abc" {
		t.Fatalf("ID = %q", ID(ctx))
	}
	again, id := Ensure(ctx)
	if id != "abc" || ID(again) != "abc" {
		t.Fatalf("Ensure replaced existing id: %q", id)
	}
}

func TestEnsureGenerates(t *testing.T) {
	ctx, id := Ensure(context.Background())
	if id == "" || ID(ctx) != id {
		t.Fatalf("Ensure id %q ctx %q", id, ID(ctx))
	}
	if _, err := xid.FromString(id); err != nil {
		t.Fatalf("generated id is not an xid: %v", err)
	}
}
