package api

import (
	"fmt"
	"strings"
)

// ServiceKind identifies the RPC a coordinator issues against a participant.
type ServiceKind uint32

const (
	// ServiceNotifySessionConfig announces the configuration scope a session acquired or released.
	ServiceNotifySessionConfig ServiceKind = iota
	// ServiceCommitTransaction carries commit transaction start/end and platform vote/global.
	ServiceCommitTransaction
	// ServiceCommitDriverVoteGlobal carries driver vote/global requests.
	ServiceCommitDriverVoteGlobal
	// ServiceCommitDriverResult delivers per-controller driver results to platform participants.
	ServiceCommitDriverResult
	// ServiceCommitGlobalAbort aborts an in-flight commit.
	ServiceCommitGlobalAbort
	// ServiceAuditTransaction carries audit start/end, transaction start/end and platform vote/global.
	ServiceAuditTransaction
	// ServiceAuditDriverVoteGlobal carries driver audit vote/global requests.
	ServiceAuditDriverVoteGlobal
	// ServiceAuditDriverResult delivers per-controller audit results to platform participants.
	ServiceAuditDriverResult
	// ServiceAuditGlobalAbort aborts an in-flight audit.
	ServiceAuditGlobalAbort
	// ServiceAuditCancel cancels an audit; it may arrive before the audit start.
	ServiceAuditCancel
	// ServiceSaveConfig persists the running configuration to startup.
	ServiceSaveConfig
	// ServiceClearStartup clears the startup configuration.
	ServiceClearStartup
	// ServiceUserAbort discards the candidate configuration of a session.
	ServiceUserAbort
	// ServiceSetup asks the participant to prepare its configuration stores.
	ServiceSetup
	// ServiceSetupComplete reports that cluster setup has completed.
	ServiceSetupComplete
	// ServiceGetDriverID resolves the driver (controller type) owning a controller.
	ServiceGetDriverID
	// ServiceAuditConfig asks the participant to restore configuration after a failed operation.
	ServiceAuditConfig
	// ServiceControllerType asks the participant for its own controller type.
	ServiceControllerType
	// ServiceAutosaveEnable turns autosave on.
	ServiceAutosaveEnable
	// ServiceAutosaveDisable turns autosave off.
	ServiceAutosaveDisable

	serviceKindMax
)

var serviceNames = [...]string{
	ServiceNotifySessionConfig:    "notify-session-config",
	ServiceCommitTransaction:      "commit-transaction",
	ServiceCommitDriverVoteGlobal: "commit-driver-vote-global",
	ServiceCommitDriverResult:     "commit-driver-result",
	ServiceCommitGlobalAbort:      "commit-global-abort",
	ServiceAuditTransaction:       "audit-transaction",
	ServiceAuditDriverVoteGlobal:  "audit-driver-vote-global",
	ServiceAuditDriverResult:      "audit-driver-result",
	ServiceAuditGlobalAbort:       "audit-global-abort",
	ServiceAuditCancel:            "audit-cancel",
	ServiceSaveConfig:             "save-config",
	ServiceClearStartup:           "clear-startup",
	ServiceUserAbort:              "user-abort",
	ServiceSetup:                  "setup",
	ServiceSetupComplete:          "setup-complete",
	ServiceGetDriverID:            "get-driver-id",
	ServiceAuditConfig:            "audit-config",
	ServiceControllerType:         "controller-type",
	ServiceAutosaveEnable:         "autosave-enable",
	ServiceAutosaveDisable:        "autosave-disable",
}

// String returns the route name of the service.
func (k ServiceKind) String() string {
	if k < serviceKindMax {
		return serviceNames[k]
	}
	return fmt.Sprintf("service(%d)", uint32(k))
}

// Valid reports whether k names a known service.
func (k ServiceKind) Valid() bool {
	return k < serviceKindMax
}

// ParseServiceKind resolves a route name (as returned by String) to its kind.
func ParseServiceKind(name string) (ServiceKind, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range serviceNames {
		if n == name {
			return ServiceKind(i), true
		}
	}
	return 0, false
}

// ServiceKinds lists every known service in wire order.
func ServiceKinds() []ServiceKind {
	out := make([]ServiceKind, 0, int(serviceKindMax))
	for k := range serviceKindMax {
		out = append(out, k)
	}
	return out
}

// LongRunning reports whether the service belongs to the commit, audit, save
// or autosave families, whose calls run without a transport timeout.
func (k ServiceKind) LongRunning() bool {
	switch k {
	case ServiceCommitTransaction, ServiceCommitDriverVoteGlobal, ServiceCommitDriverResult, ServiceCommitGlobalAbort,
		ServiceAuditTransaction, ServiceAuditDriverVoteGlobal, ServiceAuditDriverResult, ServiceAuditGlobalAbort, ServiceAuditCancel,
		ServiceSaveConfig, ServiceAutosaveEnable, ServiceAutosaveDisable:
		return true
	}
	return false
}

// HoldsSession reports whether calls of this kind publish their session as the
// engine's shared "current session" so response helpers can stream into it.
// Audit cancel is excluded so it can run alongside an in-flight audit.
func (k ServiceKind) HoldsSession() bool {
	switch k {
	case ServiceCommitTransaction, ServiceCommitDriverVoteGlobal, ServiceCommitDriverResult, ServiceCommitGlobalAbort,
		ServiceAuditTransaction, ServiceAuditDriverVoteGlobal, ServiceAuditDriverResult, ServiceAuditGlobalAbort,
		ServiceGetDriverID, ServiceControllerType:
		return true
	}
	return false
}
