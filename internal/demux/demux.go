// Package demux decodes the per-controller records packed into a driver
// result payload.
package demux

import (
	"errors"
	"fmt"

	"pkt.systems/tclib/api"
	"pkt.systems/tclib/session"
)

// ErrEmptyPayload is returned for a payload without fields.
var ErrEmptyPayload = errors.New("demux: empty payload")

// KeyIndex maps controller id to error position to the payload field index of
// that error's key type. Key and value records follow at index+1 and index+2.
type KeyIndex map[string]map[uint32]int

// Position returns the field index recorded for controllerID's error errPos.
func (k KeyIndex) Position(controllerID string, errPos uint32) (int, bool) {
	positions, ok := k[controllerID]
	if !ok {
		return 0, false
	}
	idx, ok := positions[errPos]
	return idx, ok
}

// Len returns the total number of recorded error positions.
func (k KeyIndex) Len() int {
	n := 0
	for _, positions := range k {
		n += len(positions)
	}
	return n
}

// Parse scans payload from start and returns every controller record it
// finds. Scanning stops cleanly when no further string field remains. On
// error the partial results must be discarded.
func Parse(payload session.Reader, start int) ([]api.ControllerResult, KeyIndex, error) {
	count := payload.Count()
	if count == 0 {
		return nil, nil, ErrEmptyPayload
	}
	var results []api.ControllerResult
	index := make(KeyIndex)
	i := start
	for {
		at, ok := next(payload, i, session.TypeString)
		if !ok {
			return results, index, nil
		}
		var r api.ControllerResult
		var err error
		if r.ControllerID, err = payload.ReadString(at); err != nil {
			return results, index, fmt.Errorf("demux: controller id: %w", err)
		}
		if r.RespCode, err = payload.ReadUint32(at + 1); err != nil {
			return results, index, fmt.Errorf("demux: %s resp code: %w", r.ControllerID, err)
		}
		if r.NumErrors, err = payload.ReadUint32(at + 2); err != nil {
			return results, index, fmt.Errorf("demux: %s error count: %w", r.ControllerID, err)
		}
		i = at + 3
		if payload.TypeAt(i) == session.TypeUint64 {
			if r.Commit.Number, err = payload.ReadUint64(i); err != nil {
				return results, index, fmt.Errorf("demux: %s commit number: %w", r.ControllerID, err)
			}
			if r.Commit.Date, err = payload.ReadUint64(i + 1); err != nil {
				return results, index, fmt.Errorf("demux: %s commit date: %w", r.ControllerID, err)
			}
			if r.Commit.Application, err = payload.ReadString(i + 2); err != nil {
				return results, index, fmt.Errorf("demux: %s commit application: %w", r.ControllerID, err)
			}
			i += 3
		}
		if r.NumErrors > 0 {
			// Each error carries at least its key type field.
			if remaining := count - i; remaining < 0 || uint64(r.NumErrors) > uint64(remaining) {
				return results, index, fmt.Errorf("demux: %s error count %d exceeds payload: %w", r.ControllerID, r.NumErrors, session.ErrFieldRange)
			}
			positions := make(map[uint32]int, r.NumErrors)
			r.KeyTypes = make([]uint32, 0, r.NumErrors)
			for pos := uint32(0); pos < r.NumErrors; pos++ {
				at, ok := next(payload, i, session.TypeUint32)
				if !ok {
					return results, index, fmt.Errorf("demux: %s error %d: %w", r.ControllerID, pos, session.ErrFieldRange)
				}
				keyType, err := payload.ReadUint32(at)
				if err != nil {
					return results, index, fmt.Errorf("demux: %s error %d key type: %w", r.ControllerID, pos, err)
				}
				positions[pos] = at
				r.KeyTypes = append(r.KeyTypes, keyType)
				i = at + 1
			}
			index[r.ControllerID] = positions
		}
		results = append(results, r)
	}
}

func next(payload session.Reader, from int, want session.FieldType) (int, bool) {
	for i := from; i < payload.Count(); i++ {
		if payload.TypeAt(i) == want {
			return i, true
		}
	}
	return 0, false
}
