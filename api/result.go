package api

import "fmt"

// ResultCode is the leading field of every response a participant returns.
type ResultCode uint32

const (
	ResultOK ResultCode = iota
	ResultFailure
	ResultFatal
	ResultAuditCancelled
	ResultInvalidSessionID
	ResultInvalidConfigID
	ResultInvalidConfigMode
	ResultInvalidOperState
	ResultInvalidControllerID
	ResultUnsupported
)

var resultNames = [...]string{
	ResultOK:                  "ok",
	ResultFailure:             "failure",
	ResultFatal:               "fatal",
	ResultAuditCancelled:      "audit_cancelled",
	ResultInvalidSessionID:    "invalid_session_id",
	ResultInvalidConfigID:     "invalid_config_id",
	ResultInvalidConfigMode:   "invalid_config_mode",
	ResultInvalidOperState:    "invalid_oper_state",
	ResultInvalidControllerID: "invalid_controller_id",
	ResultUnsupported:         "unsupported",
}

func (r ResultCode) String() string {
	if int(r) < len(resultNames) {
		return resultNames[r]
	}
	return fmt.Sprintf("result(%d)", uint32(r))
}

// ConfigMode is the scope a session acquired for submitting configuration.
type ConfigMode uint32

const (
	ConfigGlobal ConfigMode = iota
	ConfigReal
	ConfigVirtual
	ConfigVTN
)

func (m ConfigMode) String() string {
	switch m {
	case ConfigGlobal:
		return "global"
	case ConfigReal:
		return "real"
	case ConfigVirtual:
		return "virtual"
	case ConfigVTN:
		return "vtn"
	}
	return fmt.Sprintf("mode(%d)", uint32(m))
}

// NoConfigID is the sentinel config id of a session that holds no configuration.
const NoConfigID uint32 = 0

// EndResult is the outcome the coordinator reports with a transaction end.
type EndResult uint32

const (
	EndSuccess EndResult = iota
	EndFailure
)

func (r EndResult) String() string {
	if r == EndSuccess {
		return "success"
	}
	return "failure"
}

// AuditResult is the participant's verdict on an audit, written back with
// the audit driver-result response.
type AuditResult uint32

const (
	AuditSuccess AuditResult = iota
	AuditFailure
)

func (r AuditResult) String() string {
	if r == AuditSuccess {
		return "success"
	}
	return "failure"
}

// DBTarget names the configuration datastore an audit-config request restores.
type DBTarget uint32

const (
	DBCandidate DBTarget = iota
	DBRunning
	DBStartup
	DBAudit
)
