package api

import "fmt"

// Phase is the operation state of the current commit or audit exchange. The
// same values travel on the wire as the message operation code.
type Phase uint32

const (
	PhaseNone Phase = iota
	PhaseNotifyConfig
	PhaseSetup
	PhaseSetupComplete

	PhaseCommitTransStart
	PhaseCommitVote
	PhaseCommitDriverVote
	PhaseCommitVoteDriverResult
	PhaseCommitGlobal
	PhaseCommitDriverGlobal
	PhaseCommitGlobalDriverResult
	PhaseCommitGlobalAbort
	PhaseCommitTransEnd

	PhaseAuditStart
	PhaseAuditTransStart
	PhaseAuditVote
	PhaseAuditDriverVote
	PhaseAuditVoteDriverResult
	PhaseAuditGlobal
	PhaseAuditDriverGlobal
	PhaseAuditGlobalDriverResult
	PhaseAuditGlobalAbort
	PhaseAuditTransEnd
	PhaseAuditEnd
	PhaseAuditCancel

	PhaseSaveConfig
	PhaseClearStartup
	PhaseAbortCandidate
	PhaseGetDriverID
	PhaseControllerType
	PhaseAuditConfig
	PhaseAutosaveEnable
	PhaseAutosaveDisable

	PhaseMax
)

var phaseNames = [...]string{
	PhaseNone:                     "NONE",
	PhaseNotifyConfig:             "NOTIFY_CONFIG",
	PhaseSetup:                    "SETUP",
	PhaseSetupComplete:            "SETUP_COMPLETE",
	PhaseCommitTransStart:         "COMMIT_TRANS_START",
	PhaseCommitVote:               "COMMIT_VOTE",
	PhaseCommitDriverVote:         "COMMIT_DRIVER_VOTE",
	PhaseCommitVoteDriverResult:   "COMMIT_VOTE_DRIVER_RESULT",
	PhaseCommitGlobal:             "COMMIT_GLOBAL",
	PhaseCommitDriverGlobal:       "COMMIT_DRIVER_GLOBAL",
	PhaseCommitGlobalDriverResult: "COMMIT_GLOBAL_DRIVER_RESULT",
	PhaseCommitGlobalAbort:        "COMMIT_GLOBAL_ABORT",
	PhaseCommitTransEnd:           "COMMIT_TRANS_END",
	PhaseAuditStart:               "AUDIT_START",
	PhaseAuditTransStart:          "AUDIT_TRANS_START",
	PhaseAuditVote:                "AUDIT_VOTE",
	PhaseAuditDriverVote:          "AUDIT_DRIVER_VOTE",
	PhaseAuditVoteDriverResult:    "AUDIT_VOTE_DRIVER_RESULT",
	PhaseAuditGlobal:              "AUDIT_GLOBAL",
	PhaseAuditDriverGlobal:        "AUDIT_DRIVER_GLOBAL",
	PhaseAuditGlobalDriverResult:  "AUDIT_GLOBAL_DRIVER_RESULT",
	PhaseAuditGlobalAbort:         "AUDIT_GLOBAL_ABORT",
	PhaseAuditTransEnd:            "AUDIT_TRANS_END",
	PhaseAuditEnd:                 "AUDIT_END",
	PhaseAuditCancel:              "AUDIT_CANCEL",
	PhaseSaveConfig:               "SAVE_CONFIG",
	PhaseClearStartup:             "CLEAR_STARTUP",
	PhaseAbortCandidate:           "ABORT_CANDIDATE",
	PhaseGetDriverID:              "GET_DRIVER_ID",
	PhaseControllerType:           "CONTROLLER_TYPE",
	PhaseAuditConfig:              "AUDIT_CONFIG",
	PhaseAutosaveEnable:           "AUTOSAVE_ENABLE",
	PhaseAutosaveDisable:          "AUTOSAVE_DISABLE",
	PhaseMax:                      "MAX",
}

func (p Phase) String() string {
	if p <= PhaseMax {
		return phaseNames[p]
	}
	return fmt.Sprintf("PHASE(%d)", uint32(p))
}

// IsCommit reports whether p belongs to the commit family.
func (p Phase) IsCommit() bool {
	return p >= PhaseCommitTransStart && p <= PhaseCommitTransEnd
}

// IsAudit reports whether p belongs to the audit family.
func (p Phase) IsAudit() bool {
	return p >= PhaseAuditStart && p <= PhaseAuditCancel
}

// IsDriverResult reports whether p is one of the four phases in which a
// platform participant consumes per-controller driver results.
func (p Phase) IsDriverResult() bool {
	switch p {
	case PhaseCommitVoteDriverResult, PhaseCommitGlobalDriverResult,
		PhaseAuditVoteDriverResult, PhaseAuditGlobalDriverResult:
		return true
	}
	return false
}

// IsDriverVoteGlobal reports whether p is one of the four phases in which a
// driver participant produces per-controller results.
func (p Phase) IsDriverVoteGlobal() bool {
	switch p {
	case PhaseCommitDriverVote, PhaseCommitDriverGlobal,
		PhaseAuditDriverVote, PhaseAuditDriverGlobal:
		return true
	}
	return false
}

// Role distinguishes platform participants (logical/physical network
// managers) from driver participants. It is derived from the controller type a
// participant reports and never stored.
type Role uint8

const (
	RolePlatform Role = iota
	RoleDriver
)

func (r Role) String() string {
	if r == RoleDriver {
		return "driver"
	}
	return "platform"
}

// ControllerType identifies a controller family. A driver participant owns
// exactly one; its wire value doubles as the driver id.
type ControllerType uint32

const (
	ControllerUnknown ControllerType = iota
	ControllerPFC
	ControllerVNP
	ControllerPOLC
	ControllerODC
)

var controllerTypeNames = [...]string{
	ControllerUnknown: "unknown",
	ControllerPFC:     "pfc",
	ControllerVNP:     "vnp",
	ControllerPOLC:    "polc",
	ControllerODC:     "odc",
}

func (c ControllerType) String() string {
	if int(c) < len(controllerTypeNames) {
		return controllerTypeNames[c]
	}
	return fmt.Sprintf("controller(%d)", uint32(c))
}

// ParseControllerType resolves a lower-case controller family name.
func ParseControllerType(name string) (ControllerType, bool) {
	for i, n := range controllerTypeNames {
		if n == name {
			return ControllerType(i), true
		}
	}
	return ControllerUnknown, false
}

// RoleOf derives the participant role from its controller type.
func RoleOf(ct ControllerType) Role {
	if ct == ControllerUnknown {
		return RolePlatform
	}
	return RoleDriver
}
