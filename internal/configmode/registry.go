// Package configmode tracks which configuration scope each coordinator session
// holds so commit and abort requests can be checked against it.
package configmode

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"pkt.systems/tclib/api"
)

var (
	// ErrUnknownSession means the session holds no configuration scope.
	ErrUnknownSession = errors.New("configmode: unknown session")
	// ErrConfigMismatch means the config id differs from the one acquired.
	ErrConfigMismatch = errors.New("configmode: config id mismatch")
	// ErrModeMismatch means the config mode differs from the one acquired.
	ErrModeMismatch = errors.New("configmode: config mode mismatch")
	// ErrVTNMismatch means a VTN-scoped request names another VTN.
	ErrVTNMismatch = errors.New("configmode: vtn mismatch")
)

// Entry is the scope held by one session.
type Entry struct {
	SessionID uint32
	ConfigID  uint32
	Mode      api.ConfigMode
	VTN       string
}

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[uint32]Entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[uint32]Entry)}
}

// Update records the scope of sessionID. A zero configID releases the
// session's entry. Acquiring the global mode drops every other session.
func (r *Registry) Update(sessionID, configID uint32, mode api.ConfigMode, vtn string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if configID == api.NoConfigID {
		delete(r.entries, sessionID)
		return
	}
	if mode == api.ConfigGlobal {
		clear(r.entries)
	}
	r.entries[sessionID] = Entry{SessionID: sessionID, ConfigID: configID, Mode: mode, VTN: vtn}
}

// Lookup returns the scope held by sessionID.
func (r *Registry) Lookup(sessionID uint32) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sessionID]
	return e, ok
}

// Remove drops sessionID's entry.
func (r *Registry) Remove(sessionID uint32) {
	r.mu.Lock()
	delete(r.entries, sessionID)
	r.mu.Unlock()
}

// Entries returns every held scope ordered by session id.
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// ValidateScope checks that a request carrying configID, mode and vtn belongs
// to the scope sessionID acquired.
func (r *Registry) ValidateScope(sessionID, configID uint32, mode api.ConfigMode, vtn string) error {
	e, ok := r.Lookup(sessionID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSession, sessionID)
	}
	if configID == api.NoConfigID || e.ConfigID != configID {
		return fmt.Errorf("%w: session %d holds %d, got %d", ErrConfigMismatch, sessionID, e.ConfigID, configID)
	}
	if e.Mode == api.ConfigGlobal {
		return nil
	}
	if e.Mode != mode {
		return fmt.Errorf("%w: session %d holds %s, got %s", ErrModeMismatch, sessionID, e.Mode, mode)
	}
	if mode == api.ConfigVTN && e.VTN != vtn {
		return fmt.Errorf("%w: session %d holds %q, got %q", ErrVTNMismatch, sessionID, e.VTN, vtn)
	}
	return nil
}
