// Package participant implements the protocol engine a transaction
// coordinator participant links against. An Engine decodes every commit,
// audit and housekeeping call, sequences it through the participant's phase
// register and hands it to the registered Callbacks.
package participant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/tclib/api"
	"pkt.systems/tclib/internal/configmode"
	"pkt.systems/tclib/internal/demux"
	"pkt.systems/tclib/internal/sequencer"
	"pkt.systems/tclib/internal/svcfields"
	"pkt.systems/tclib/session"
)

// Config configures an Engine.
type Config struct {
	Logger pslog.Logger
}

// Engine is safe for concurrent use by many in-flight calls. Construct one per
// process with New.
type Engine struct {
	logger  pslog.Logger
	metrics *engineMetrics

	regMu     sync.Mutex
	callbacks Callbacks

	seq      *sequencer.Sequencer
	registry *configmode.Registry
	autosave sequencer.Flag

	// cacheMu guards the driver-result caches rebuilt by every driver-result call.
	cacheMu        sync.Mutex
	results        []api.ControllerResult
	keyIndex       demux.KeyIndex
	lastController string

	sessMu   sync.Mutex
	inflight int
	current  session.Session
}

// New constructs an Engine with no callbacks registered.
func New(cfg Config) *Engine {
	logger := svcfields.WithSubsystem(cfg.Logger, "tclib.engine")
	return &Engine{
		logger:   logger,
		metrics:  newEngineMetrics(logger),
		seq:      sequencer.New(),
		registry: configmode.New(),
	}
}

// Register installs the participant's callbacks. It may succeed only once.
func (e *Engine) Register(cb Callbacks) error {
	if cb == nil {
		return errors.New("participant: nil callbacks")
	}
	e.regMu.Lock()
	defer e.regMu.Unlock()
	if e.callbacks != nil {
		return ErrAlreadyRegistered
	}
	e.callbacks = cb
	e.logger.Info("tclib.callbacks.registered", "controller_type", cb.HandleGetControllerType().String())
	return nil
}

// Registered reports whether Register has succeeded.
func (e *Engine) Registered() bool {
	return e.registered() != nil
}

func (e *Engine) registered() Callbacks {
	e.regMu.Lock()
	defer e.regMu.Unlock()
	return e.callbacks
}

// Handle dispatches one call. The result code is written into sess; a
// non-nil error means the call could not be answered through sess at all
// (unregistered callbacks, unsupported service, or a session write failure).
func (e *Engine) Handle(ctx context.Context, kind api.ServiceKind, sess session.Session) error {
	cb := e.registered()
	if cb == nil {
		return ErrNotRegistered
	}
	logger := e.loggerFor(ctx)
	if !kind.Valid() {
		logger.Warn("tclib.service.unsupported", "service", uint32(kind))
		if err := sess.SetResult(uint32(api.ResultUnsupported)); err != nil {
			return fmt.Errorf("participant: write result: %w", err)
		}
		return fmt.Errorf("%w: %d", ErrUnsupportedService, uint32(kind))
	}
	if kind.LongRunning() {
		if err := sess.DisableTimeout(); err != nil {
			return fmt.Errorf("participant: %s: %w", kind, err)
		}
	}

	e.enter(ctx, kind, sess)
	defer e.exit(ctx, kind)

	start := time.Now()
	own := cb.HandleGetControllerType()
	call := &call{
		engine:    e,
		cb:        cb,
		role:      api.RoleOf(own),
		ownDriver: own,
		sess:      sess,
		logger:    logger.With("service", kind.String()),
		kind:      kind,
	}
	code, err := call.route(ctx)
	if err != nil {
		call.logger.Error("tclib.dispatch.transport_error", "error", err)
		return fmt.Errorf("participant: %s: %w", kind, err)
	}
	if err := sess.SetResult(uint32(code)); err != nil {
		return fmt.Errorf("participant: %s: write result: %w", kind, err)
	}
	e.metrics.recordDispatch(ctx, kind, code, time.Since(start))
	call.logger.Debug("tclib.dispatch.done", "result", code.String(), "elapsed", time.Since(start))
	return nil
}

func (e *Engine) loggerFor(ctx context.Context) pslog.Logger {
	if ctx != nil {
		if logger := pslog.LoggerFromContext(ctx); logger != nil {
			return logger
		}
	}
	return e.logger
}

// enter counts the call in flight and publishes its session for the response
// helpers. Audit cancels stay out of the count so they can overlap a running
// audit without disturbing the shared session.
func (e *Engine) enter(ctx context.Context, kind api.ServiceKind, sess session.Session) {
	if kind == api.ServiceAuditCancel {
		return
	}
	e.sessMu.Lock()
	e.inflight++
	if kind.HoldsSession() {
		e.current = sess
	}
	e.sessMu.Unlock()
	e.metrics.addInflight(ctx, 1)
}

func (e *Engine) exit(ctx context.Context, kind api.ServiceKind) {
	if kind == api.ServiceAuditCancel {
		return
	}
	e.sessMu.Lock()
	e.inflight--
	if e.inflight <= 0 {
		e.inflight = 0
		e.current = nil
	}
	e.sessMu.Unlock()
	e.metrics.addInflight(ctx, -1)
}

func (e *Engine) currentSession() session.Session {
	e.sessMu.Lock()
	defer e.sessMu.Unlock()
	return e.current
}

// release drops every transaction-scoped resource. Safe to call repeatedly.
func (e *Engine) release() {
	e.seq.Reset()
	e.cacheMu.Lock()
	e.results = nil
	e.keyIndex = nil
	e.lastController = ""
	e.cacheMu.Unlock()
}

// Release drops every transaction-scoped resource: the phase returns to NONE,
// driver-result caches are emptied and a pending audit cancel is forgotten.
func (e *Engine) Release() {
	e.release()
	e.logger.Debug("tclib.transaction.released")
}

// Phase returns the current operation phase.
func (e *Engine) Phase() api.Phase {
	return e.seq.Phase()
}

// Autosave reports whether autosave is enabled.
func (e *Engine) Autosave() bool {
	return e.autosave.Get()
}

// ControllerResults returns a copy of the results decoded by the most recent
// driver-result call.
func (e *Engine) ControllerResults() []api.ControllerResult {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	out := make([]api.ControllerResult, len(e.results))
	copy(out, e.results)
	return out
}

// Role returns the role the registered callbacks select.
func (e *Engine) Role() api.Role {
	cb := e.registered()
	if cb == nil {
		return api.RolePlatform
	}
	return api.RoleOf(cb.HandleGetControllerType())
}

// Snapshot is a point-in-time view of engine state.
type Snapshot struct {
	Registered           bool
	Role                 api.Role
	Phase                api.Phase
	InFlight             int
	SessionHeld          bool
	AuditCancelRequested bool
	AuditInProgress      bool
	Autosave             bool
	ControllerResults    int
	KeyIndexEntries      int
	ConfigSessions       int
}

// Snapshot captures the engine's state for diagnostics.
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Registered:           e.Registered(),
		Role:                 e.Role(),
		Phase:                e.seq.Phase(),
		AuditCancelRequested: e.seq.CancelRequested(),
		AuditInProgress:      e.seq.AuditInProgress(),
		Autosave:             e.autosave.Get(),
		ConfigSessions:       len(e.registry.Entries()),
	}
	e.sessMu.Lock()
	s.InFlight = e.inflight
	s.SessionHeld = e.current != nil
	e.sessMu.Unlock()
	e.cacheMu.Lock()
	s.ControllerResults = len(e.results)
	s.KeyIndexEntries = e.keyIndex.Len()
	e.cacheMu.Unlock()
	return s
}
