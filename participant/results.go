package participant

import (
	"fmt"

	"pkt.systems/tclib/api"
	"pkt.systems/tclib/session"
)

// resultPhase reports whether role may read or write controller result
// detail while the register is at p. Platforms relay driver results in the
// four driver-result phases; drivers produce them during their own vote and
// global commit.
func resultPhase(role api.Role, p api.Phase) bool {
	if role == api.RoleDriver {
		return p.IsDriverVoteGlobal()
	}
	return p.IsDriverResult()
}

// resultSession returns the shared session if the current phase allows
// result detail to flow through it.
func (e *Engine) resultSession() (session.Session, error) {
	cb := e.registered()
	if cb == nil {
		return nil, ErrNotRegistered
	}
	role := api.RoleOf(cb.HandleGetControllerType())
	if phase := e.seq.Phase(); !resultPhase(role, phase) {
		return nil, fmt.Errorf("%w: %s as %s", ErrInvalidOperState, phase, role)
	}
	sess := e.currentSession()
	if sess == nil {
		return nil, ErrNoSession
	}
	return sess, nil
}

// WriteControllerInfo appends a controller's result header to the current
// response.
func (e *Engine) WriteControllerInfo(controllerID string, respCode, numErrors uint32) error {
	return e.writeControllerInfo(controllerID, respCode, numErrors, nil)
}

// WriteControllerCommitInfo is WriteControllerInfo with commit metadata.
func (e *Engine) WriteControllerCommitInfo(controllerID string, respCode, numErrors uint32, commit api.CommitInfo) error {
	return e.writeControllerInfo(controllerID, respCode, numErrors, &commit)
}

func (e *Engine) writeControllerInfo(controllerID string, respCode, numErrors uint32, commit *api.CommitInfo) error {
	sess, err := e.resultSession()
	if err != nil {
		return err
	}
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	if err := sess.WriteString(controllerID); err != nil {
		return err
	}
	if err := sess.WriteUint32(respCode); err != nil {
		return err
	}
	if err := sess.WriteUint32(numErrors); err != nil {
		return err
	}
	if commit != nil {
		if err := sess.WriteUint64(commit.Number); err != nil {
			return err
		}
		if err := sess.WriteUint64(commit.Date); err != nil {
			return err
		}
		if err := sess.WriteString(commit.Application); err != nil {
			return err
		}
	}
	e.lastController = controllerID
	return nil
}

// WriteKeyValueDataInfo appends one error's key type and key/value records.
// controllerID must be the one last passed to WriteControllerInfo.
func (e *Engine) WriteKeyValueDataInfo(controllerID string, keyType uint32, key, value []byte) error {
	sess, err := e.resultSession()
	if err != nil {
		return err
	}
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	if controllerID != e.lastController {
		return fmt.Errorf("%w: got %q, last written %q", ErrControllerMismatch, controllerID, e.lastController)
	}
	if err := sess.WriteUint32(keyType); err != nil {
		return err
	}
	if err := sess.WriteBinary(key); err != nil {
		return err
	}
	return sess.WriteBinary(value)
}

// ReadKeyValueDataInfo returns the key and value records a driver reported
// for controllerID's error at errPos. keyType must match the reported type.
func (e *Engine) ReadKeyValueDataInfo(controllerID string, errPos, keyType uint32) (key, value []byte, err error) {
	sess, err := e.resultSession()
	if err != nil {
		return nil, nil, err
	}
	e.cacheMu.Lock()
	idx, ok := e.keyIndex.Position(controllerID, errPos)
	e.cacheMu.Unlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s error %d", ErrKeyIndexNotFound, controllerID, errPos)
	}
	reported, err := sess.ReadUint32(idx)
	if err != nil {
		return nil, nil, err
	}
	if reported != keyType {
		return nil, nil, fmt.Errorf("%w: %s error %d reported %d, want %d", ErrKeyTypeMismatch, controllerID, errPos, reported, keyType)
	}
	if key, err = sess.ReadBinary(idx + 1); err != nil {
		return nil, nil, err
	}
	if value, err = sess.ReadBinary(idx + 2); err != nil {
		return nil, nil, err
	}
	return key, value, nil
}
