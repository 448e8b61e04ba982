// Package sequencer holds the phase register of a participant and gates
// every commit and audit step through the role's transition table.
package sequencer

import (
	"sync"

	"pkt.systems/tclib/api"
)

// Decision is the outcome of one Advance call.
type Decision struct {
	// Accepted reports whether the caller may proceed.
	Accepted bool
	// Prior is the phase observed before the transition.
	Prior api.Phase
	// Skip is set on an accepted AUDIT_CANCEL that must not be processed
	// further: either it raced ahead of AUDIT_START or it arrived in a phase
	// where cancellation is meaningless.
	Skip bool
	// Raced is set when AUDIT_CANCEL arrived while no audit was running.
	Raced bool
}

// Flag is a boolean guarded by its own lock.
type Flag struct {
	mu sync.Mutex
	v  bool
}

func (f *Flag) Get() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.v
}

func (f *Flag) Set(v bool) {
	f.mu.Lock()
	f.v = v
	f.mu.Unlock()
}

// Sequencer is safe for concurrent use; all Advance calls are serialized.
type Sequencer struct {
	mu    sync.Mutex
	phase api.Phase

	cancelRequested Flag
	auditInProgress Flag
}

// New returns a Sequencer at PhaseNone.
func New() *Sequencer {
	return &Sequencer{phase: api.PhaseNone}
}

// Phase returns the current phase.
func (s *Sequencer) Phase() api.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Advance moves the register to requested if the role's table allows it.
// Rejected transitions leave the register untouched. AUDIT_CANCEL is never
// rejected: from NONE it records that cancellation raced ahead of the audit,
// and from any other illegal phase it is accepted with Skip set.
func (s *Sequencer) Advance(role api.Role, requested api.Phase) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	prior := s.phase
	if requested == api.PhaseAuditCancel && prior == api.PhaseNone {
		s.cancelRequested.Set(true)
		return Decision{Accepted: true, Prior: prior, Skip: true, Raced: true}
	}
	if Legal(role, prior, requested, s.auditInProgress.Get()) {
		s.phase = requested
		return Decision{Accepted: true, Prior: prior}
	}
	if requested == api.PhaseAuditCancel {
		return Decision{Accepted: true, Prior: prior, Skip: true}
	}
	return Decision{Prior: prior}
}

// Reset returns the register to NONE and clears the cancel flag. It is safe
// to call repeatedly.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	s.phase = api.PhaseNone
	s.cancelRequested.Set(false)
	s.mu.Unlock()
}

// CancelRequested reports whether an audit cancel arrived before its audit.
func (s *Sequencer) CancelRequested() bool { return s.cancelRequested.Get() }

// AuditInProgress reports whether the running audit targets this driver.
func (s *Sequencer) AuditInProgress() bool { return s.auditInProgress.Get() }

// SetAuditInProgress records whether the running audit targets this driver.
func (s *Sequencer) SetAuditInProgress(v bool) { s.auditInProgress.Set(v) }
