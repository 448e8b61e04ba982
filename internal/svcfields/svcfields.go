// Package svcfields holds the logging keys shared by every tclib subsystem.
package svcfields

import (
	"strings"

	"pkt.systems/pslog"
)

// SubsystemKey tags each entry with the component that produced it.
const SubsystemKey = pslog.TrustedString("sys")

const (
	// ServiceKey carries the participant service route.
	ServiceKey = pslog.TrustedString("service")
	// CorrelationKey carries the coordinator correlation id.
	CorrelationKey = pslog.TrustedString("cid")
	// RequestKey carries the transport request id.
	RequestKey = pslog.TrustedString("req_id")
)

// Subsystem joins parts with dots, dropping empty parts.
func Subsystem(parts ...string) string {
	kept := parts[:0:0]
	for _, part := range parts {
		if part = strings.Trim(part, ". "); part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, ".")
}

// WithSubsystem returns logger tagged with subsystem. A nil logger becomes a
// no-op logger so callers never need to check.
func WithSubsystem(logger pslog.Logger, subsystem string) pslog.Logger {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	if subsystem = Subsystem(subsystem); subsystem == "" {
		return logger
	}
	return logger.With(SubsystemKey, subsystem)
}

// WithCall tags logger with the identifiers of one participant call. Empty
// identifiers are omitted.
func WithCall(logger pslog.Logger, service, requestID, correlationID string) pslog.Logger {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	var kv []any
	if service != "" {
		kv = append(kv, ServiceKey, service)
	}
	if requestID != "" {
		kv = append(kv, RequestKey, requestID)
	}
	if correlationID != "" {
		kv = append(kv, CorrelationKey, correlationID)
	}
	if len(kv) == 0 {
		return logger
	}
	return logger.With(kv...)
}
