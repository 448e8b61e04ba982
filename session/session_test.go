package session

import (
	"bytes"
	"errors"
	"testing"
)

func TestBufferReadsTypedFields(t *testing.T) {
	b := NewBuffer(Uint32(7), String("ctr"), Uint64(42), Binary([]byte{1, 2}), Uint8(3))
	if b.Count() != 5 {
		t.Fatalf("count %d", b.Count())
	}
	if v, err := b.ReadUint32(0); err != nil || v != 7 {
		t.Fatalf("uint32: %d %v", v, err)
	}
	if v, err := b.ReadString(1); err != nil || v != "ctr" {
		t.Fatalf("string: %q %v", v, err)
	}
	if v, err := b.ReadUint64(2); err != nil || v != 42 {
		t.Fatalf("uint64: %d %v", v, err)
	}
	if v, err := b.ReadBinary(3); err != nil || !bytes.Equal(v, []byte{1, 2}) {
		t.Fatalf("binary: %v %v", v, err)
	}
	if v, err := b.ReadUint8(4); err != nil || v != 3 {
		t.Fatalf("uint8: %d %v", v, err)
	}
	if b.TypeAt(9) != TypeNone {
		t.Fatalf("expected TypeNone past the end")
	}
}

func TestBufferReadErrors(t *testing.T) {
	b := NewBuffer(Uint32(1))
	if _, err := b.ReadString(0); !errors.Is(err, ErrFieldType) {
		t.Fatalf("expected ErrFieldType, got %v", err)
	}
	if _, err := b.ReadUint32(1); !errors.Is(err, ErrFieldRange) {
		t.Fatalf("expected ErrFieldRange, got %v", err)
	}
	if _, err := b.ReadUint32(-1); !IsDecodeError(err) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestBufferWritesAndClose(t *testing.T) {
	b := NewBuffer()
	b.SetOutputLimit(2)
	if err := b.WriteString("a"); err != nil {
		t.Fatal(err)
	}
	if err := b.WriteUint32(1); err != nil {
		t.Fatal(err)
	}
	if err := b.WriteUint32(2); !errors.Is(err, ErrOutputLimit) {
		t.Fatalf("expected ErrOutputLimit, got %v", err)
	}
	if err := b.SetResult(3); err != nil {
		t.Fatal(err)
	}
	b.Close()
	if err := b.WriteUint8(1); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if b.Result() != 3 || len(b.Outputs()) != 2 {
		t.Fatalf("unexpected state result=%d outputs=%v", b.Result(), b.Outputs())
	}
}

func TestBufferDisableTimeoutHook(t *testing.T) {
	b := NewBuffer()
	calls := 0
	b.SetTimeoutHook(func() error { calls++; return nil })
	if err := b.DisableTimeout(); err != nil {
		t.Fatal(err)
	}
	if calls != 1 || !b.TimeoutDisabled() {
		t.Fatalf("hook calls=%d disabled=%v", calls, b.TimeoutDisabled())
	}

	failing := NewBuffer()
	failing.SetTimeoutHook(func() error { return errors.New("boom") })
	if err := failing.DisableTimeout(); err == nil {
		t.Fatal("expected hook error")
	}
	if failing.TimeoutDisabled() {
		t.Fatal("timeout should remain enabled after hook failure")
	}
}

func TestWireRoundTrip(t *testing.T) {
	in := []Field{Uint32(5), String("pfc"), Uint64(1 << 40), Binary([]byte("key")), Uint8(255), Binary(nil)}
	out, err := Decode(Encode(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d fields, want %d", len(out), len(in))
	}
	for i := range in {
		if in[i].Type != out[i].Type || in[i].Num != out[i].Num || in[i].Str != out[i].Str || !bytes.Equal(in[i].Bin, out[i].Bin) {
			t.Fatalf("field %d: got %v want %v", i, out[i], in[i])
		}
	}
}

func TestWireRejectsMalformed(t *testing.T) {
	cases := map[string][]byte{
		"truncated":    Encode([]Field{String("abcdef")})[:3],
		"unknown type": {0x38, 0x01},
		"overflow":     AppendField(nil, Field{Type: TypeUint8, Num: 300}),
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode(payload); !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestResponseRoundTrip(t *testing.T) {
	payload := EncodeResponse(7, []Field{Uint32(1)})
	code, fields, err := DecodeResponse(payload)
	if err != nil {
		t.Fatal(err)
	}
	if code != 7 || len(fields) != 1 || fields[0].Num != 1 {
		t.Fatalf("unexpected response %d %v", code, fields)
	}
	if _, _, err := DecodeResponse(Encode([]Field{String("x")})); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}
