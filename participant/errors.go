package participant

import (
	"errors"
	"fmt"

	"pkt.systems/tclib/api"
)

var (
	// ErrNotRegistered is returned when a call arrives before Register.
	ErrNotRegistered = errors.New("participant: callbacks not registered")
	// ErrAlreadyRegistered is returned by a second Register call.
	ErrAlreadyRegistered = errors.New("participant: callbacks already registered")
	// ErrInvalidOperState is returned by response helpers outside a driver-result phase.
	ErrInvalidOperState = errors.New("participant: invalid operation state")
	// ErrControllerMismatch is returned when key data names a controller other
	// than the one last written.
	ErrControllerMismatch = errors.New("participant: controller id mismatch")
	// ErrNoSession is returned by response helpers when no call holds a session.
	ErrNoSession = errors.New("participant: no active session")
	// ErrUnsupportedService is returned for unknown service kinds.
	ErrUnsupportedService = errors.New("participant: unsupported service")
	// ErrKeyIndexNotFound is returned when no key is recorded for an error position.
	ErrKeyIndexNotFound = errors.New("participant: key index not found")
	// ErrKeyTypeMismatch is returned when the recorded key type differs from the requested one.
	ErrKeyTypeMismatch = errors.New("participant: key type mismatch")
)

// Failure lets a callback answer with a specific protocol result code.
type Failure struct {
	Code   api.ResultCode
	Detail string
}

func (f Failure) Error() string {
	if f.Detail != "" {
		return fmt.Sprintf("%s: %s", f.Code, f.Detail)
	}
	return f.Code.String()
}

// Fail builds a Failure with a formatted detail.
func Fail(code api.ResultCode, format string, args ...any) error {
	return Failure{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// ResultFor maps a callback error to the result code sent to the coordinator.
func ResultFor(err error) api.ResultCode {
	if err == nil {
		return api.ResultOK
	}
	var failure Failure
	if errors.As(err, &failure) {
		return failure.Code
	}
	var failurePtr *Failure
	if errors.As(err, &failurePtr) && failurePtr != nil {
		return failurePtr.Code
	}
	return api.ResultFailure
}
