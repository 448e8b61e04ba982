package participant

import (
	"context"

	"pkt.systems/tclib/api"
	"pkt.systems/tclib/session"
)

// CommitRequest is the decoded form of a commit-family call.
type CommitRequest struct {
	Phase     api.Phase
	SessionID uint32
	ConfigID  uint32
	Mode      api.ConfigMode
	VTN       string
	// DriverID is set on driver-result calls.
	DriverID api.ControllerType
	// Controllers is set on driver vote and global calls.
	Controllers []string
	// Output writes into the response of the current call.
	Output session.Writer
}

// AuditRequest is the decoded form of an audit-family call.
type AuditRequest struct {
	Phase        api.Phase
	SessionID    uint32
	DriverID     api.ControllerType
	ControllerID string
	Controllers  []string
	Output       session.Writer
}

// AbortRequest is a user abort of the candidate configuration.
type AbortRequest struct {
	SessionID uint32
	ConfigID  uint32
	Mode      api.ConfigMode
	VTN       string
}

// AuditConfigRequest asks the participant to restore a datastore after a
// failed audit.
type AuditConfigRequest struct {
	Target        api.DBTarget
	FailedService uint32
	Mode          api.ConfigMode
	VTN           string
	Version       uint64
}

// Callbacks is implemented once per process and registered with the Engine.
// Every method that returns an error is answered with ResultFor(err).
//
// Vote and global handlers return the controllers each driver must contact
// when the participant is a platform; drivers return nil and write their own
// controller results with the Engine's response helpers.
type Callbacks interface {
	HandleCommitTransactionStart(ctx context.Context, req CommitRequest) error
	HandleCommitTransactionEnd(ctx context.Context, req CommitRequest, end api.EndResult) error
	HandleCommitVoteRequest(ctx context.Context, req CommitRequest) (api.DriverInfo, error)
	HandleCommitGlobalCommit(ctx context.Context, req CommitRequest) (api.DriverInfo, error)
	HandleCommitDriverResult(ctx context.Context, req CommitRequest, results []api.ControllerResult) error
	HandleCommitGlobalAbort(ctx context.Context, req CommitRequest, aborted api.Phase) error

	HandleAuditStart(ctx context.Context, req AuditRequest) error
	HandleAuditEnd(ctx context.Context, req AuditRequest, end api.EndResult) error
	HandleAuditTransactionStart(ctx context.Context, req AuditRequest) error
	HandleAuditTransactionEnd(ctx context.Context, req AuditRequest, end api.EndResult) error
	HandleAuditVoteRequest(ctx context.Context, req AuditRequest) (api.DriverInfo, error)
	HandleAuditGlobalCommit(ctx context.Context, req AuditRequest) (api.DriverInfo, error)
	HandleAuditDriverResult(ctx context.Context, req AuditRequest, results []api.ControllerResult) (api.AuditResult, error)
	HandleAuditGlobalAbort(ctx context.Context, req AuditRequest, aborted api.Phase) error
	HandleAuditCancel(ctx context.Context, req AuditRequest) error

	HandleSaveConfiguration(ctx context.Context, sessionID uint32) error
	HandleClearStartup(ctx context.Context, sessionID uint32) error
	HandleAbortCandidate(ctx context.Context, req AbortRequest) error
	HandleSetup(ctx context.Context) error
	HandleSetupComplete(ctx context.Context) error
	HandleAuditConfig(ctx context.Context, req AuditConfigRequest) error

	// HandleGetControllerType returns this participant's own controller type;
	// ControllerUnknown makes it a platform.
	HandleGetControllerType() api.ControllerType
	// HandleGetDriverID returns the driver owning controllerID.
	HandleGetDriverID(controllerID string) api.ControllerType
}

// NopCallbacks acknowledges every call as a platform participant. Embed it to
// implement only the handlers a participant cares about.
type NopCallbacks struct{}

var _ Callbacks = NopCallbacks{}

func (NopCallbacks) HandleCommitTransactionStart(context.Context, CommitRequest) error { return nil }
func (NopCallbacks) HandleCommitTransactionEnd(context.Context, CommitRequest, api.EndResult) error {
	return nil
}
func (NopCallbacks) HandleCommitVoteRequest(context.Context, CommitRequest) (api.DriverInfo, error) {
	return nil, nil
}
func (NopCallbacks) HandleCommitGlobalCommit(context.Context, CommitRequest) (api.DriverInfo, error) {
	return nil, nil
}
func (NopCallbacks) HandleCommitDriverResult(context.Context, CommitRequest, []api.ControllerResult) error {
	return nil
}
func (NopCallbacks) HandleCommitGlobalAbort(context.Context, CommitRequest, api.Phase) error {
	return nil
}
func (NopCallbacks) HandleAuditStart(context.Context, AuditRequest) error { return nil }
func (NopCallbacks) HandleAuditEnd(context.Context, AuditRequest, api.EndResult) error {
	return nil
}
func (NopCallbacks) HandleAuditTransactionStart(context.Context, AuditRequest) error { return nil }
func (NopCallbacks) HandleAuditTransactionEnd(context.Context, AuditRequest, api.EndResult) error {
	return nil
}
func (NopCallbacks) HandleAuditVoteRequest(context.Context, AuditRequest) (api.DriverInfo, error) {
	return nil, nil
}
func (NopCallbacks) HandleAuditGlobalCommit(context.Context, AuditRequest) (api.DriverInfo, error) {
	return nil, nil
}
func (NopCallbacks) HandleAuditDriverResult(context.Context, AuditRequest, []api.ControllerResult) (api.AuditResult, error) {
	return api.AuditSuccess, nil
}
func (NopCallbacks) HandleAuditGlobalAbort(context.Context, AuditRequest, api.Phase) error {
	return nil
}
func (NopCallbacks) HandleAuditCancel(context.Context, AuditRequest) error       { return nil }
func (NopCallbacks) HandleSaveConfiguration(context.Context, uint32) error       { return nil }
func (NopCallbacks) HandleClearStartup(context.Context, uint32) error            { return nil }
func (NopCallbacks) HandleAbortCandidate(context.Context, AbortRequest) error    { return nil }
func (NopCallbacks) HandleSetup(context.Context) error                           { return nil }
func (NopCallbacks) HandleSetupComplete(context.Context) error                   { return nil }
func (NopCallbacks) HandleAuditConfig(context.Context, AuditConfigRequest) error { return nil }
func (NopCallbacks) HandleGetControllerType() api.ControllerType                 { return api.ControllerUnknown }
func (NopCallbacks) HandleGetDriverID(string) api.ControllerType                 { return api.ControllerUnknown }
