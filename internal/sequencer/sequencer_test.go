package sequencer

import (
	"sync"
	"testing"

	"pkt.systems/tclib/api"
)

func allPhases() []api.Phase {
	out := make([]api.Phase, 0, int(api.PhaseMax)+1)
	for p := api.PhaseNone; p <= api.PhaseMax; p++ {
		out = append(out, p)
	}
	return out
}

// force puts the sequencer in an arbitrary phase for table exhaustive checks.
func force(s *Sequencer, p api.Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

func listed(t table, current, requested api.Phase) bool {
	for _, from := range t[requested] {
		if from == current {
			return true
		}
	}
	return false
}

func TestAdvanceMatchesTables(t *testing.T) {
	roles := []api.Role{api.RolePlatform, api.RoleDriver}
	for _, role := range roles {
		for _, inProgress := range []bool{false, true} {
			for _, current := range allPhases() {
				for _, requested := range allPhases() {
					s := New()
					s.SetAuditInProgress(inProgress)
					force(s, current)
					d := s.Advance(role, requested)
					want := Legal(role, current, requested, inProgress)
					if requested == api.PhaseAuditCancel {
						if !d.Accepted {
							t.Fatalf("%s %s->%s: audit cancel rejected", role, current, requested)
						}
						continue
					}
					if d.Accepted != want {
						t.Fatalf("%s inProgress=%v %s->%s: accepted=%v want %v", role, inProgress, current, requested, d.Accepted, want)
					}
					if d.Prior != current {
						t.Fatalf("prior %s want %s", d.Prior, current)
					}
					if !want && s.Phase() != current {
						t.Fatalf("%s %s->%s: rejected transition moved register to %s", role, current, requested, s.Phase())
					}
					if want && s.Phase() != requested {
						t.Fatalf("%s %s->%s: register at %s", role, current, requested, s.Phase())
					}
				}
			}
		}
	}
}

func TestLegalFollowsTables(t *testing.T) {
	cases := []struct {
		role api.Role
		tbl  table
	}{
		{api.RolePlatform, platformCommit},
		{api.RolePlatform, platformAudit},
		{api.RoleDriver, driverCommit},
	}
	for _, tc := range cases {
		for _, current := range allPhases() {
			for requested := range tc.tbl {
				if got, want := Legal(tc.role, current, requested, false), listed(tc.tbl, current, requested); got != want {
					t.Fatalf("%s %s->%s: got %v want %v", tc.role, current, requested, got, want)
				}
			}
		}
	}
	for _, current := range allPhases() {
		for requested := range driverAudit {
			if got, want := Legal(api.RoleDriver, current, requested, true), listed(driverAudit, current, requested); got != want {
				t.Fatalf("driver %s->%s: got %v want %v", current, requested, got, want)
			}
		}
	}
}

func TestAuditCancelFromNoneSetsFlag(t *testing.T) {
	for _, role := range []api.Role{api.RolePlatform, api.RoleDriver} {
		s := New()
		d := s.Advance(role, api.PhaseAuditCancel)
		if !d.Accepted || !d.Skip || !d.Raced {
			t.Fatalf("%s: unexpected decision %+v", role, d)
		}
		if s.Phase() != api.PhaseNone {
			t.Fatalf("%s: phase moved to %s", role, s.Phase())
		}
		if !s.CancelRequested() {
			t.Fatalf("%s: cancel flag not set", role)
		}
	}
}

func TestAuditCancelIllegalIsSkipped(t *testing.T) {
	s := New()
	force(s, api.PhaseCommitVote)
	d := s.Advance(api.RolePlatform, api.PhaseAuditCancel)
	if !d.Accepted || !d.Skip || d.Raced {
		t.Fatalf("unexpected decision %+v", d)
	}
	if s.Phase() != api.PhaseCommitVote || s.CancelRequested() {
		t.Fatalf("illegal cancel changed state: phase=%s flag=%v", s.Phase(), s.CancelRequested())
	}
}

func TestAuditCancelLegalMovesRegister(t *testing.T) {
	s := New()
	force(s, api.PhaseAuditVote)
	d := s.Advance(api.RolePlatform, api.PhaseAuditCancel)
	if !d.Accepted || d.Skip {
		t.Fatalf("unexpected decision %+v", d)
	}
	if s.Phase() != api.PhaseAuditCancel {
		t.Fatalf("phase %s", s.Phase())
	}
	if d := s.Advance(api.RolePlatform, api.PhaseAuditStart); !d.Accepted {
		t.Fatalf("audit start after cancel rejected")
	}
}

func TestPlatformCommitSkipVote(t *testing.T) {
	s := New()
	for _, p := range []api.Phase{api.PhaseCommitTransStart, api.PhaseCommitGlobal, api.PhaseCommitTransEnd} {
		if d := s.Advance(api.RolePlatform, p); !d.Accepted {
			t.Fatalf("%s rejected from %s", p, d.Prior)
		}
	}
	s.Reset()
	if s.Phase() != api.PhaseNone {
		t.Fatalf("phase %s after reset", s.Phase())
	}
}

func TestDriverAuditRequiresInProgress(t *testing.T) {
	s := New()
	if d := s.Advance(api.RoleDriver, api.PhaseAuditStart); d.Accepted {
		t.Fatal("audit start accepted without audit in progress")
	}
	s.SetAuditInProgress(true)
	if d := s.Advance(api.RoleDriver, api.PhaseAuditStart); !d.Accepted {
		t.Fatal("audit start rejected with audit in progress")
	}
}

func TestDriverAuditTransEndForeignAudit(t *testing.T) {
	s := New()
	force(s, api.PhaseCommitGlobal)
	if d := s.Advance(api.RoleDriver, api.PhaseAuditTransEnd); !d.Accepted {
		t.Fatal("trans end for a foreign audit must be accepted from any phase")
	}
}

func TestResetIdempotent(t *testing.T) {
	s := New()
	s.Advance(api.RolePlatform, api.PhaseAuditCancel)
	s.Reset()
	s.Reset()
	if s.Phase() != api.PhaseNone || s.CancelRequested() {
		t.Fatalf("phase=%s flag=%v", s.Phase(), s.CancelRequested())
	}
}

func TestAdvanceConcurrent(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	accepted := make(chan struct{}, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d := s.Advance(api.RolePlatform, api.PhaseCommitTransStart); d.Accepted {
				accepted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(accepted)
	n := 0
	for range accepted {
		n++
	}
	if n != 1 {
		t.Fatalf("expected exactly one accepted trans start, got %d", n)
	}
}
