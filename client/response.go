package client

import (
	"fmt"

	"pkt.systems/tclib/api"
	"pkt.systems/tclib/session"
)

// Response is a participant's answer to one call. The embedded Fields give
// typed, indexed access to the output fields that followed the result code.
type Response struct {
	Result api.ResultCode
	session.Fields
	// CorrelationID is the id the participant echoed.
	CorrelationID string
}

// ResultError reports a non-OK protocol result.
type ResultError struct {
	Service api.ServiceKind
	Result  api.ResultCode
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("tclib: %s answered %s", e.Service, e.Result)
}

// Err returns a *ResultError when the result is not OK.
func (r *Response) Err(kind api.ServiceKind) error {
	if r == nil || r.Result == api.ResultOK {
		return nil
	}
	return &ResultError{Service: kind, Result: r.Result}
}
