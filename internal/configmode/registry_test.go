package configmode

import (
	"errors"
	"testing"

	"pkt.systems/tclib/api"
)

func TestGlobalAcquisitionClearsRegistry(t *testing.T) {
	r := New()
	r.Update(2, 9, api.ConfigVTN, "v1")
	r.Update(3, 4, api.ConfigReal, "")
	r.Update(1, 7, api.ConfigGlobal, "")
	entries := r.Entries()
	if len(entries) != 1 || entries[0].SessionID != 1 {
		t.Fatalf("entries %+v", entries)
	}
}

func TestUpdateZeroConfigRemoves(t *testing.T) {
	r := New()
	r.Update(1, 7, api.ConfigVirtual, "")
	r.Update(1, api.NoConfigID, api.ConfigVirtual, "")
	if _, ok := r.Lookup(1); ok {
		t.Fatal("entry survived release")
	}
	r.Update(5, api.NoConfigID, api.ConfigGlobal, "")
	if _, ok := r.Lookup(5); ok {
		t.Fatal("zero config id must not create an entry")
	}
}

func TestRemove(t *testing.T) {
	r := New()
	r.Update(1, 7, api.ConfigReal, "")
	r.Remove(1)
	r.Remove(1)
	if len(r.Entries()) != 0 {
		t.Fatal("remove left entries")
	}
}

func TestValidateScope(t *testing.T) {
	r := New()
	r.Update(1, 7, api.ConfigVTN, "v1")
	r.Update(2, 8, api.ConfigReal, "")

	cases := []struct {
		name   string
		sid    uint32
		cid    uint32
		mode   api.ConfigMode
		vtn    string
		expect error
	}{
		{"vtn match", 1, 7, api.ConfigVTN, "v1", nil},
		{"vtn mismatch", 1, 7, api.ConfigVTN, "v2", ErrVTNMismatch},
		{"mode mismatch", 1, 7, api.ConfigReal, "", ErrModeMismatch},
		{"config mismatch", 1, 6, api.ConfigVTN, "v1", ErrConfigMismatch},
		{"no config id", 1, api.NoConfigID, api.ConfigVTN, "v1", ErrConfigMismatch},
		{"unknown session", 9, 7, api.ConfigVTN, "v1", ErrUnknownSession},
		{"real ignores vtn", 2, 8, api.ConfigReal, "anything", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := r.ValidateScope(tc.sid, tc.cid, tc.mode, tc.vtn)
			if tc.expect == nil && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if tc.expect != nil && !errors.Is(err, tc.expect) {
				t.Fatalf("expected %v, got %v", tc.expect, err)
			}
		})
	}
}

func TestValidateScopeGlobalAcceptsAnyMode(t *testing.T) {
	r := New()
	r.Update(1, 7, api.ConfigGlobal, "")
	if err := r.ValidateScope(1, 7, api.ConfigVTN, "v9"); err != nil {
		t.Fatalf("global scope rejected request: %v", err)
	}
	if err := r.ValidateScope(1, 8, api.ConfigGlobal, ""); !errors.Is(err, ErrConfigMismatch) {
		t.Fatalf("expected config mismatch, got %v", err)
	}
}
