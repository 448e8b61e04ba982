package participant

import (
	"context"

	"pkt.systems/tclib/api"
)

func (c *call) notifySessionConfig() (api.ResultCode, error) {
	r := newFieldReader(c.sess)
	sessionID, configID, mode, vtn := r.u32(), r.u32(), r.mode(), r.str()
	if r.err != nil {
		return c.decodeFailed(r.err)
	}
	if c.role != api.RolePlatform {
		return api.ResultOK, nil
	}
	c.engine.registry.Update(sessionID, configID, mode, vtn)
	c.logger.Debug("tclib.config.notified", "session_id", sessionID, "config_id", configID, "mode", mode.String(), "vtn", vtn)
	return api.ResultOK, nil
}

func (c *call) saveConfig(ctx context.Context) (api.ResultCode, error) {
	r := newFieldReader(c.sess)
	sessionID := r.u32()
	if r.err != nil {
		return c.decodeFailed(r.err)
	}
	return c.result("save_configuration", c.cb.HandleSaveConfiguration(ctx, sessionID)), nil
}

func (c *call) clearStartup(ctx context.Context) (api.ResultCode, error) {
	r := newFieldReader(c.sess)
	sessionID := r.u32()
	if r.err != nil {
		return c.decodeFailed(r.err)
	}
	return c.result("clear_startup", c.cb.HandleClearStartup(ctx, sessionID)), nil
}

func (c *call) userAbort(ctx context.Context) (api.ResultCode, error) {
	r := newFieldReader(c.sess)
	req := AbortRequest{SessionID: r.u32(), ConfigID: r.u32(), Mode: r.mode(), VTN: r.str()}
	if r.err != nil {
		return c.decodeFailed(r.err)
	}
	if c.role == api.RolePlatform {
		if code := c.validateScope(req.SessionID, req.ConfigID, req.Mode, req.VTN); code != api.ResultOK {
			return code, nil
		}
	}
	return c.result("abort_candidate", c.cb.HandleAbortCandidate(ctx, req)), nil
}

func (c *call) getDriverID() (api.ResultCode, error) {
	r := newFieldReader(c.sess)
	controllerID := r.str()
	if r.err != nil {
		return c.decodeFailed(r.err)
	}
	driver := c.cb.HandleGetDriverID(controllerID)
	if err := c.sess.WriteUint32(uint32(driver)); err != nil {
		return 0, err
	}
	return api.ResultOK, nil
}

func (c *call) controllerType() (api.ResultCode, error) {
	if err := c.sess.WriteUint32(uint32(c.ownDriver)); err != nil {
		return 0, err
	}
	return api.ResultOK, nil
}

func (c *call) auditConfig(ctx context.Context) (api.ResultCode, error) {
	r := newFieldReader(c.sess)
	req := AuditConfigRequest{
		Target:        api.DBTarget(r.u32()),
		FailedService: r.u32(),
		Mode:          r.mode(),
		VTN:           r.str(),
		Version:       r.u64(),
	}
	if r.err != nil {
		return c.decodeFailed(r.err)
	}
	return c.result("audit_config", c.cb.HandleAuditConfig(ctx, req)), nil
}

func (c *call) setAutosave(enabled bool) api.ResultCode {
	c.engine.autosave.Set(enabled)
	c.logger.Info("tclib.autosave.updated", "enabled", enabled)
	return api.ResultOK
}
