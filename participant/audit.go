package participant

import (
	"context"

	"pkt.systems/tclib/api"
)

// Offset of the first controller record in an audit driver-result payload.
const auditResultStart = 4

func (c *call) decodeAuditHeader(r *fieldReader) AuditRequest {
	return AuditRequest{
		Phase:        r.phase(),
		SessionID:    r.u32(),
		DriverID:     r.driver(),
		ControllerID: r.str(),
		Output:       c.sess,
	}
}

func (c *call) auditTransaction(ctx context.Context) (api.ResultCode, error) {
	r := newFieldReader(c.sess)
	req := c.decodeAuditHeader(r)
	var end api.EndResult
	if req.Phase == api.PhaseAuditTransEnd || req.Phase == api.PhaseAuditEnd {
		end = api.EndResult(r.u32())
	}
	if r.err != nil {
		return c.decodeFailed(r.err)
	}
	switch req.Phase {
	case api.PhaseAuditStart, api.PhaseAuditTransStart, api.PhaseAuditVote,
		api.PhaseAuditGlobal, api.PhaseAuditTransEnd, api.PhaseAuditEnd:
	default:
		return c.wrongPhase(req.Phase)
	}
	seq := c.engine.seq
	if c.role == api.RoleDriver {
		seq.SetAuditInProgress(req.DriverID == c.ownDriver)
	}
	if req.Phase == api.PhaseAuditEnd && seq.CancelRequested() {
		c.logger.Info("tclib.audit.end.cancelled", "session_id", req.SessionID, "controller_id", req.ControllerID)
		c.engine.release()
		return api.ResultOK, nil
	}
	if d := c.advance(ctx, req.Phase); !d.Accepted {
		return api.ResultInvalidOperState, nil
	}

	switch req.Phase {
	case api.PhaseAuditStart:
		if seq.CancelRequested() {
			c.logger.Info("tclib.audit.start.cancelled", "session_id", req.SessionID, "controller_id", req.ControllerID)
			return api.ResultAuditCancelled, nil
		}
		code := c.result("audit_start", c.cb.HandleAuditStart(ctx, req))
		if code != api.ResultOK {
			c.engine.release()
		}
		return code, nil
	case api.PhaseAuditTransStart:
		if seq.CancelRequested() {
			// Only AUDIT_END follows a cancelled start.
			c.logger.Info("tclib.audit.trans_start.cancelled", "session_id", req.SessionID, "controller_id", req.ControllerID)
			return api.ResultAuditCancelled, nil
		}
		code := c.result("audit_transaction_start", c.cb.HandleAuditTransactionStart(ctx, req))
		if code != api.ResultOK {
			c.engine.release()
		}
		return code, nil
	case api.PhaseAuditVote:
		info, err := c.cb.HandleAuditVoteRequest(ctx, req)
		return c.writeDriverInfo("audit_vote", info, err)
	case api.PhaseAuditGlobal:
		info, err := c.cb.HandleAuditGlobalCommit(ctx, req)
		return c.writeDriverInfo("audit_global", info, err)
	case api.PhaseAuditTransEnd:
		if c.role == api.RoleDriver && !seq.AuditInProgress() {
			// The audit targets another driver; its AUDIT_END never reaches us.
			c.engine.release()
			return api.ResultOK, nil
		}
		return c.result("audit_transaction_end", c.cb.HandleAuditTransactionEnd(ctx, req, end)), nil
	default:
		defer c.engine.release()
		return c.result("audit_end", c.cb.HandleAuditEnd(ctx, req, end)), nil
	}
}

func (c *call) auditDriverVoteGlobal(ctx context.Context) (api.ResultCode, error) {
	r := newFieldReader(c.sess)
	req := c.decodeAuditHeader(r)
	req.Controllers = r.strings()
	if r.err != nil {
		return c.decodeFailed(r.err)
	}
	if req.Phase != api.PhaseAuditDriverVote && req.Phase != api.PhaseAuditDriverGlobal {
		return c.wrongPhase(req.Phase)
	}
	if d := c.advance(ctx, req.Phase); !d.Accepted {
		return api.ResultInvalidOperState, nil
	}
	if req.Phase == api.PhaseAuditDriverVote {
		_, err := c.cb.HandleAuditVoteRequest(ctx, req)
		return c.result("audit_driver_vote", err), nil
	}
	_, err := c.cb.HandleAuditGlobalCommit(ctx, req)
	return c.result("audit_driver_global", err), nil
}

func (c *call) auditDriverResult(ctx context.Context) (api.ResultCode, error) {
	r := newFieldReader(c.sess)
	req := c.decodeAuditHeader(r)
	if r.err != nil {
		return c.decodeFailed(r.err)
	}
	if req.Phase != api.PhaseAuditVoteDriverResult && req.Phase != api.PhaseAuditGlobalDriverResult {
		return c.wrongPhase(req.Phase)
	}
	if d := c.advance(ctx, req.Phase); !d.Accepted {
		return api.ResultInvalidOperState, nil
	}
	results, err := c.engine.rebuildResults(c.sess, auditResultStart)
	if err != nil {
		return c.decodeFailed(err)
	}
	verdict, err := c.cb.HandleAuditDriverResult(ctx, req, results)
	if err != nil {
		verdict = api.AuditFailure
	}
	if werr := c.sess.WriteUint32(uint32(verdict)); werr != nil {
		return 0, werr
	}
	return c.result("audit_driver_result", err), nil
}

func (c *call) auditGlobalAbort(ctx context.Context) (api.ResultCode, error) {
	r := newFieldReader(c.sess)
	req := c.decodeAuditHeader(r)
	aborted := r.phase()
	if r.err != nil {
		return c.decodeFailed(r.err)
	}
	if req.Phase != api.PhaseAuditGlobalAbort {
		return c.wrongPhase(req.Phase)
	}
	if d := c.advance(ctx, req.Phase); !d.Accepted {
		return api.ResultInvalidOperState, nil
	}
	return c.result("audit_global_abort", c.cb.HandleAuditGlobalAbort(ctx, req, aborted)), nil
}

// auditCancel is never refused. A cancel that beats its audit is remembered
// so the audit's start and end skip their callbacks.
func (c *call) auditCancel(ctx context.Context) (api.ResultCode, error) {
	r := newFieldReader(c.sess)
	req := AuditRequest{
		Phase:        api.PhaseAuditCancel,
		SessionID:    r.u32(),
		DriverID:     r.driver(),
		ControllerID: r.str(),
		Output:       c.sess,
	}
	if r.err != nil {
		return c.decodeFailed(r.err)
	}
	d := c.advance(ctx, api.PhaseAuditCancel)
	if d.Raced {
		c.logger.Info("tclib.audit.cancel.raced", "session_id", req.SessionID, "controller_id", req.ControllerID)
		c.engine.metrics.recordCancelRaced(ctx)
		return api.ResultOK, nil
	}
	if d.Skip {
		c.logger.Debug("tclib.audit.cancel.skipped", "phase", d.Prior.String())
		return api.ResultOK, nil
	}
	return c.result("audit_cancel", c.cb.HandleAuditCancel(ctx, req)), nil
}
