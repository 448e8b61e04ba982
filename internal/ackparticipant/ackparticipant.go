// Package ackparticipant provides a participant that acknowledges every phase.
// tclibd serves it so coordinators can be exercised without a real network
// manager behind the endpoint.
package ackparticipant

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/tclib/api"
	"pkt.systems/tclib/internal/svcfields"
	"pkt.systems/tclib/participant"
)

// Writer is the subset of *participant.Engine the participant writes driver
// results through.
type Writer interface {
	WriteControllerInfo(controllerID string, respCode, numErrors uint32) error
}

// Config configures a Participant.
type Config struct {
	// ControllerType is the participant's own type; ControllerUnknown makes
	// it a platform.
	ControllerType api.ControllerType
	// Controllers maps controller ids to the driver that owns them.
	Controllers map[string]api.ControllerType
	Logger      pslog.Logger
}

// Participant implements participant.Callbacks by acknowledging every call.
type Participant struct {
	writer      Writer
	own         api.ControllerType
	controllers map[string]api.ControllerType
	logger      pslog.Logger

	mu     sync.Mutex
	counts map[string]int
}

var _ participant.Callbacks = (*Participant)(nil)

// New returns a Participant writing driver results through w.
func New(w Writer, cfg Config) *Participant {
	return &Participant{
		writer:      w,
		own:         cfg.ControllerType,
		controllers: maps.Clone(cfg.Controllers),
		logger:      svcfields.WithSubsystem(cfg.Logger, "tclib.ack"),
		counts:      make(map[string]int),
	}
}

// ParseControllers parses "controller=driver" pairs, e.g. "ctr1=pfc".
func ParseControllers(pairs []string) (map[string]api.ControllerType, error) {
	out := make(map[string]api.ControllerType, len(pairs))
	for _, pair := range pairs {
		id, driver, ok := strings.Cut(pair, "=")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("controller %q: want id=driver", pair)
		}
		ct, ok := api.ParseControllerType(strings.ToLower(strings.TrimSpace(driver)))
		if !ok || ct == api.ControllerUnknown {
			return nil, fmt.Errorf("controller %q: unknown driver %q", pair, driver)
		}
		out[id] = ct
	}
	return out, nil
}

// Counts returns how often each callback ran.
func (p *Participant) Counts() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.counts)
}

func (p *Participant) seen(event string, keyvals ...any) {
	p.mu.Lock()
	p.counts[event]++
	p.mu.Unlock()
	p.logger.Debug("tclib.ack."+event, keyvals...)
}

// driverInfo groups the configured controllers by driver.
func (p *Participant) driverInfo() api.DriverInfo {
	info := make(api.DriverInfo)
	for _, id := range slices.Sorted(maps.Keys(p.controllers)) {
		info.Add(p.controllers[id], id)
	}
	return info
}

func (p *Participant) vote(event string, phase api.Phase, controllers []string) (api.DriverInfo, error) {
	p.seen(event, "phase", phase, "controllers", len(controllers))
	if api.RoleOf(p.own) == api.RolePlatform {
		return p.driverInfo(), nil
	}
	for _, id := range controllers {
		if err := p.writer.WriteControllerInfo(id, uint32(api.ResultOK), 0); err != nil {
			return nil, fmt.Errorf("write controller %s: %w", id, err)
		}
	}
	return nil, nil
}

func (p *Participant) HandleCommitTransactionStart(_ context.Context, req participant.CommitRequest) error {
	p.seen("commit_transaction_start", "session", req.SessionID, "config", req.ConfigID)
	return nil
}

func (p *Participant) HandleCommitTransactionEnd(_ context.Context, req participant.CommitRequest, end api.EndResult) error {
	p.seen("commit_transaction_end", "session", req.SessionID, "end", end)
	return nil
}

func (p *Participant) HandleCommitVoteRequest(_ context.Context, req participant.CommitRequest) (api.DriverInfo, error) {
	return p.vote("commit_vote", req.Phase, req.Controllers)
}

func (p *Participant) HandleCommitGlobalCommit(_ context.Context, req participant.CommitRequest) (api.DriverInfo, error) {
	return p.vote("commit_global", req.Phase, req.Controllers)
}

func (p *Participant) HandleCommitDriverResult(_ context.Context, req participant.CommitRequest, results []api.ControllerResult) error {
	p.seen("commit_driver_result", "phase", req.Phase, "driver", req.DriverID, "controllers", len(results))
	return nil
}

func (p *Participant) HandleCommitGlobalAbort(_ context.Context, req participant.CommitRequest, aborted api.Phase) error {
	p.seen("commit_global_abort", "session", req.SessionID, "aborted", aborted)
	return nil
}

func (p *Participant) HandleAuditStart(_ context.Context, req participant.AuditRequest) error {
	p.seen("audit_start", "driver", req.DriverID, "controller", req.ControllerID)
	return nil
}

func (p *Participant) HandleAuditEnd(_ context.Context, req participant.AuditRequest, end api.EndResult) error {
	p.seen("audit_end", "controller", req.ControllerID, "end", end)
	return nil
}

func (p *Participant) HandleAuditTransactionStart(_ context.Context, req participant.AuditRequest) error {
	p.seen("audit_transaction_start", "controller", req.ControllerID)
	return nil
}

func (p *Participant) HandleAuditTransactionEnd(_ context.Context, req participant.AuditRequest, end api.EndResult) error {
	p.seen("audit_transaction_end", "controller", req.ControllerID, "end", end)
	return nil
}

func (p *Participant) HandleAuditVoteRequest(_ context.Context, req participant.AuditRequest) (api.DriverInfo, error) {
	return p.vote("audit_vote", req.Phase, req.Controllers)
}

func (p *Participant) HandleAuditGlobalCommit(_ context.Context, req participant.AuditRequest) (api.DriverInfo, error) {
	return p.vote("audit_global", req.Phase, req.Controllers)
}

func (p *Participant) HandleAuditDriverResult(_ context.Context, req participant.AuditRequest, results []api.ControllerResult) (api.AuditResult, error) {
	p.seen("audit_driver_result", "phase", req.Phase, "controllers", len(results))
	return api.AuditSuccess, nil
}

func (p *Participant) HandleAuditGlobalAbort(_ context.Context, req participant.AuditRequest, aborted api.Phase) error {
	p.seen("audit_global_abort", "controller", req.ControllerID, "aborted", aborted)
	return nil
}

func (p *Participant) HandleAuditCancel(_ context.Context, req participant.AuditRequest) error {
	p.seen("audit_cancel", "controller", req.ControllerID)
	return nil
}

func (p *Participant) HandleSaveConfiguration(_ context.Context, sessionID uint32) error {
	p.seen("save_configuration", "session", sessionID)
	return nil
}

func (p *Participant) HandleClearStartup(_ context.Context, sessionID uint32) error {
	p.seen("clear_startup", "session", sessionID)
	return nil
}

func (p *Participant) HandleAbortCandidate(_ context.Context, req participant.AbortRequest) error {
	p.seen("abort_candidate", "session", req.SessionID, "config", req.ConfigID)
	return nil
}

func (p *Participant) HandleSetup(context.Context) error {
	p.seen("setup")
	return nil
}

func (p *Participant) HandleSetupComplete(context.Context) error {
	p.seen("setup_complete")
	return nil
}

func (p *Participant) HandleAuditConfig(_ context.Context, req participant.AuditConfigRequest) error {
	p.seen("audit_config", "target", req.Target, "failed_service", req.FailedService)
	return nil
}

func (p *Participant) HandleGetControllerType() api.ControllerType {
	return p.own
}

func (p *Participant) HandleGetDriverID(controllerID string) api.ControllerType {
	p.seen("get_driver_id", "controller", controllerID)
	return p.controllers[controllerID]
}
