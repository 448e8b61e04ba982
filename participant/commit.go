package participant

import (
	"context"

	"pkt.systems/tclib/api"
	"pkt.systems/tclib/internal/demux"
	"pkt.systems/tclib/session"
)

// Offset of the first controller record in a commit driver-result payload.
const commitResultStart = 6

func (c *call) decodeCommitHeader(r *fieldReader) CommitRequest {
	return CommitRequest{
		Phase:     r.phase(),
		SessionID: r.u32(),
		ConfigID:  r.u32(),
		Mode:      r.mode(),
		VTN:       r.str(),
		Output:    c.sess,
	}
}

func (c *call) commitTransaction(ctx context.Context) (api.ResultCode, error) {
	r := newFieldReader(c.sess)
	req := c.decodeCommitHeader(r)
	var end api.EndResult
	if req.Phase == api.PhaseCommitTransEnd {
		end = api.EndResult(r.u32())
	}
	if r.err != nil {
		return c.decodeFailed(r.err)
	}
	switch req.Phase {
	case api.PhaseCommitTransStart, api.PhaseCommitVote, api.PhaseCommitGlobal, api.PhaseCommitTransEnd:
	default:
		return c.wrongPhase(req.Phase)
	}
	if d := c.advance(ctx, req.Phase); !d.Accepted {
		return api.ResultInvalidOperState, nil
	}
	if req.Phase == api.PhaseCommitTransEnd {
		defer c.engine.release()
	}
	if c.role == api.RolePlatform {
		if code := c.validateScope(req.SessionID, req.ConfigID, req.Mode, req.VTN); code != api.ResultOK {
			if req.Phase == api.PhaseCommitTransStart {
				c.engine.release()
			}
			return code, nil
		}
	}
	switch req.Phase {
	case api.PhaseCommitTransStart:
		code := c.result("commit_transaction_start", c.cb.HandleCommitTransactionStart(ctx, req))
		if code != api.ResultOK {
			c.engine.release()
		}
		return code, nil
	case api.PhaseCommitVote:
		info, err := c.cb.HandleCommitVoteRequest(ctx, req)
		return c.writeDriverInfo("commit_vote", info, err)
	case api.PhaseCommitGlobal:
		info, err := c.cb.HandleCommitGlobalCommit(ctx, req)
		return c.writeDriverInfo("commit_global", info, err)
	default:
		return c.result("commit_transaction_end", c.cb.HandleCommitTransactionEnd(ctx, req, end)), nil
	}
}

func (c *call) commitDriverVoteGlobal(ctx context.Context) (api.ResultCode, error) {
	r := newFieldReader(c.sess)
	req := c.decodeCommitHeader(r)
	req.Controllers = r.strings()
	if r.err != nil {
		return c.decodeFailed(r.err)
	}
	if req.Phase != api.PhaseCommitDriverVote && req.Phase != api.PhaseCommitDriverGlobal {
		return c.wrongPhase(req.Phase)
	}
	if d := c.advance(ctx, req.Phase); !d.Accepted {
		return api.ResultInvalidOperState, nil
	}
	if req.Phase == api.PhaseCommitDriverVote {
		_, err := c.cb.HandleCommitVoteRequest(ctx, req)
		return c.result("commit_driver_vote", err), nil
	}
	_, err := c.cb.HandleCommitGlobalCommit(ctx, req)
	return c.result("commit_driver_global", err), nil
}

func (c *call) commitDriverResult(ctx context.Context) (api.ResultCode, error) {
	r := newFieldReader(c.sess)
	req := c.decodeCommitHeader(r)
	req.DriverID = r.driver()
	if r.err != nil {
		return c.decodeFailed(r.err)
	}
	if req.Phase != api.PhaseCommitVoteDriverResult && req.Phase != api.PhaseCommitGlobalDriverResult {
		return c.wrongPhase(req.Phase)
	}
	if d := c.advance(ctx, req.Phase); !d.Accepted {
		return api.ResultInvalidOperState, nil
	}
	if c.role == api.RolePlatform {
		if code := c.validateScope(req.SessionID, req.ConfigID, req.Mode, req.VTN); code != api.ResultOK {
			return code, nil
		}
	}
	results, err := c.engine.rebuildResults(c.sess, commitResultStart)
	if err != nil {
		return c.decodeFailed(err)
	}
	return c.result("commit_driver_result", c.cb.HandleCommitDriverResult(ctx, req, results)), nil
}

func (c *call) commitGlobalAbort(ctx context.Context) (api.ResultCode, error) {
	r := newFieldReader(c.sess)
	req := c.decodeCommitHeader(r)
	aborted := r.phase()
	if r.err != nil {
		return c.decodeFailed(r.err)
	}
	if req.Phase != api.PhaseCommitGlobalAbort {
		return c.wrongPhase(req.Phase)
	}
	if d := c.advance(ctx, req.Phase); !d.Accepted {
		return api.ResultInvalidOperState, nil
	}
	if c.role == api.RolePlatform {
		if code := c.validateScope(req.SessionID, req.ConfigID, req.Mode, req.VTN); code != api.ResultOK {
			return code, nil
		}
	}
	return c.result("commit_global_abort", c.cb.HandleCommitGlobalAbort(ctx, req, aborted)), nil
}

// rebuildResults replaces the driver-result caches with the records decoded
// from payload. On error the caches are left empty.
func (e *Engine) rebuildResults(payload session.Reader, start int) ([]api.ControllerResult, error) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	e.results, e.keyIndex, e.lastController = nil, nil, ""
	results, index, err := demux.Parse(payload, start)
	if err != nil {
		return nil, err
	}
	e.results, e.keyIndex = results, index
	out := make([]api.ControllerResult, len(results))
	copy(out, results)
	return out, nil
}
