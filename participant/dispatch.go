package participant

import (
	"context"
	"errors"

	"pkt.systems/pslog"
	"pkt.systems/tclib/api"
	"pkt.systems/tclib/internal/configmode"
	"pkt.systems/tclib/internal/sequencer"
	"pkt.systems/tclib/session"
)

// call carries the per-dispatch state shared by the family handlers.
type call struct {
	engine    *Engine
	cb        Callbacks
	role      api.Role
	ownDriver api.ControllerType
	sess      session.Session
	logger    pslog.Logger
	kind      api.ServiceKind
}

// route returns the result code for the call. An error means the response
// could not be written.
func (c *call) route(ctx context.Context) (api.ResultCode, error) {
	switch c.kind {
	case api.ServiceNotifySessionConfig:
		return c.notifySessionConfig()
	case api.ServiceCommitTransaction:
		return c.commitTransaction(ctx)
	case api.ServiceCommitDriverVoteGlobal:
		return c.commitDriverVoteGlobal(ctx)
	case api.ServiceCommitDriverResult:
		return c.commitDriverResult(ctx)
	case api.ServiceCommitGlobalAbort:
		return c.commitGlobalAbort(ctx)
	case api.ServiceAuditTransaction:
		return c.auditTransaction(ctx)
	case api.ServiceAuditDriverVoteGlobal:
		return c.auditDriverVoteGlobal(ctx)
	case api.ServiceAuditDriverResult:
		return c.auditDriverResult(ctx)
	case api.ServiceAuditGlobalAbort:
		return c.auditGlobalAbort(ctx)
	case api.ServiceAuditCancel:
		return c.auditCancel(ctx)
	case api.ServiceSaveConfig:
		return c.saveConfig(ctx)
	case api.ServiceClearStartup:
		return c.clearStartup(ctx)
	case api.ServiceUserAbort:
		return c.userAbort(ctx)
	case api.ServiceSetup:
		return c.result("setup", c.cb.HandleSetup(ctx)), nil
	case api.ServiceSetupComplete:
		return c.result("setup_complete", c.cb.HandleSetupComplete(ctx)), nil
	case api.ServiceGetDriverID:
		return c.getDriverID()
	case api.ServiceAuditConfig:
		return c.auditConfig(ctx)
	case api.ServiceControllerType:
		return c.controllerType()
	case api.ServiceAutosaveEnable:
		return c.setAutosave(true), nil
	case api.ServiceAutosaveDisable:
		return c.setAutosave(false), nil
	}
	return api.ResultUnsupported, nil
}

// advance runs the phase gate and records rejections.
func (c *call) advance(ctx context.Context, requested api.Phase) sequencer.Decision {
	d := c.engine.seq.Advance(c.role, requested)
	if !d.Accepted {
		c.logger.Warn("tclib.phase.rejected", "role", c.role.String(), "from", d.Prior.String(), "to", requested.String())
		c.engine.metrics.recordRejected(ctx, c.role, d.Prior, requested)
	}
	return d
}

func (c *call) decodeFailed(err error) (api.ResultCode, error) {
	c.logger.Warn("tclib.decode.failed", "error", err)
	return api.ResultFailure, nil
}

// wrongPhase answers a call whose phase does not belong to its service.
func (c *call) wrongPhase(p api.Phase) (api.ResultCode, error) {
	c.logger.Warn("tclib.phase.unexpected", "phase", p.String())
	return api.ResultInvalidOperState, nil
}

// result maps a callback error to its result code and logs failures.
func (c *call) result(handler string, err error) api.ResultCode {
	code := ResultFor(err)
	if err != nil {
		c.logger.Warn("tclib.callback.failed", "handler", handler, "result", code.String(), "error", err)
	}
	return code
}

// validateScope checks a platform request against the config-mode registry.
func (c *call) validateScope(sessionID, configID uint32, mode api.ConfigMode, vtn string) api.ResultCode {
	err := c.engine.registry.ValidateScope(sessionID, configID, mode, vtn)
	if err == nil {
		return api.ResultOK
	}
	c.logger.Warn("tclib.scope.rejected", "session_id", sessionID, "config_id", configID, "error", err)
	switch {
	case errors.Is(err, configmode.ErrUnknownSession):
		return api.ResultInvalidSessionID
	case errors.Is(err, configmode.ErrConfigMismatch):
		return api.ResultInvalidConfigID
	default:
		return api.ResultInvalidConfigMode
	}
}

// writeDriverInfo answers a platform vote or global commit with the
// controllers each driver must contact, ordered by driver id.
func (c *call) writeDriverInfo(handler string, info api.DriverInfo, err error) (api.ResultCode, error) {
	if err != nil {
		return c.result(handler, err), nil
	}
	if c.role != api.RolePlatform {
		return api.ResultOK, nil
	}
	drivers := info.Drivers()
	if werr := c.sess.WriteUint32(uint32(len(drivers))); werr != nil {
		return 0, werr
	}
	for _, driver := range drivers {
		controllers := info[driver]
		if werr := c.sess.WriteUint32(uint32(driver)); werr != nil {
			return 0, werr
		}
		if werr := c.sess.WriteUint32(uint32(len(controllers))); werr != nil {
			return 0, werr
		}
		for _, id := range controllers {
			if werr := c.sess.WriteString(id); werr != nil {
				return 0, werr
			}
		}
	}
	return api.ResultOK, nil
}

// fieldReader walks a payload in order and keeps the first decode error.
type fieldReader struct {
	src session.Reader
	pos int
	err error
}

func newFieldReader(src session.Reader) *fieldReader {
	return &fieldReader{src: src}
}

func (r *fieldReader) u32() uint32 {
	if r.err != nil {
		return 0
	}
	v, err := r.src.ReadUint32(r.pos)
	r.err = err
	r.pos++
	return v
}

func (r *fieldReader) u64() uint64 {
	if r.err != nil {
		return 0
	}
	v, err := r.src.ReadUint64(r.pos)
	r.err = err
	r.pos++
	return v
}

func (r *fieldReader) str() string {
	if r.err != nil {
		return ""
	}
	v, err := r.src.ReadString(r.pos)
	r.err = err
	r.pos++
	return v
}

func (r *fieldReader) phase() api.Phase { return api.Phase(r.u32()) }

func (r *fieldReader) mode() api.ConfigMode { return api.ConfigMode(r.u32()) }

func (r *fieldReader) driver() api.ControllerType { return api.ControllerType(r.u32()) }

// strings reads a count followed by that many strings.
func (r *fieldReader) strings() []string {
	n := r.u32()
	if r.err != nil || n == 0 {
		return nil
	}
	if remaining := r.src.Count() - r.pos; int(n) > remaining {
		r.err = session.ErrFieldRange
		return nil
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n && r.err == nil; i++ {
		out = append(out, r.str())
	}
	return out
}
