package api

import "testing"

func TestServiceKindNames(t *testing.T) {
	for _, k := range ServiceKinds() {
		got, ok := ParseServiceKind(k.String())
		if !ok || got != k {
			t.Fatalf("ParseServiceKind(%q) = %v, %v", k.String(), got, ok)
		}
	}
	if _, ok := ParseServiceKind("no-such-service"); ok {
		t.Fatal("unknown service parsed")
	}
	if ServiceKind(500).Valid() {
		t.Fatal("out of range kind reported valid")
	}
}

func TestAuditCancelDoesNotHoldSession(t *testing.T) {
	if ServiceAuditCancel.HoldsSession() {
		t.Fatal("audit cancel must not hold the shared session")
	}
	if !ServiceAuditCancel.LongRunning() {
		t.Fatal("audit cancel belongs to the audit family")
	}
	if ServiceNotifySessionConfig.HoldsSession() || ServiceNotifySessionConfig.LongRunning() {
		t.Fatal("notify session config is a short call")
	}
}

func TestPhaseFamilies(t *testing.T) {
	for p := PhaseNone; p <= PhaseMax; p++ {
		if p.IsCommit() && p.IsAudit() {
			t.Fatalf("%s in both families", p)
		}
		if p.IsDriverResult() && p.IsDriverVoteGlobal() {
			t.Fatalf("%s is both a driver-result and a driver vote phase", p)
		}
	}
	if !PhaseAuditCancel.IsAudit() || !PhaseCommitGlobalAbort.IsCommit() {
		t.Fatal("family bounds")
	}
}

func TestRoleOf(t *testing.T) {
	if RoleOf(ControllerUnknown) != RolePlatform || RoleOf(ControllerPFC) != RoleDriver {
		t.Fatal("role derivation")
	}
	ct, ok := ParseControllerType("odc")
	if !ok || ct != ControllerODC {
		t.Fatalf("ParseControllerType(odc) = %v %v", ct, ok)
	}
}

func TestDriverInfoOrdering(t *testing.T) {
	info := DriverInfo{}
	info.Add(ControllerODC, "o1")
	info.Add(ControllerPFC, "p1")
	info.Add(ControllerPFC, "p2")
	drivers := info.Drivers()
	if len(drivers) != 2 || drivers[0] != ControllerPFC || drivers[1] != ControllerODC {
		t.Fatalf("drivers %v", drivers)
	}
	if len(info[ControllerPFC]) != 2 {
		t.Fatalf("controllers %v", info[ControllerPFC])
	}
}
