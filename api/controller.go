package api

import "sort"

// CommitInfo is the optional commit metadata a controller reports with its
// result.
type CommitInfo struct {
	Number      uint64
	Date        uint64
	Application string
}

// ControllerResult is one controller's outcome within a single driver-result
// call. KeyTypes holds the key-type code of every error, in error order.
type ControllerResult struct {
	ControllerID string
	RespCode     uint32
	NumErrors    uint32
	KeyTypes     []uint32
	Commit       CommitInfo
}

// DriverInfo maps a driver id to the controllers a vote or global commit
// touches on that driver.
type DriverInfo map[ControllerType][]string

// Drivers returns the driver ids in ascending order.
func (d DriverInfo) Drivers() []ControllerType {
	out := make([]ControllerType, 0, len(d))
	for ct := range d {
		out = append(out, ct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Add records controllerID under driver ct.
func (d DriverInfo) Add(ct ControllerType, controllerID string) {
	d[ct] = append(d[ct], controllerID)
}

// ErrorResponse is the JSON body a participant transport returns when a call
// could not be answered with a result code.
type ErrorResponse struct {
	// ErrorCode is the stable error identifier.
	ErrorCode string `json:"error"`
	// Detail provides human-readable diagnostic context for the error.
	Detail string `json:"detail,omitempty"`
	// Service echoes the service route the call targeted.
	Service string `json:"service,omitempty"`
}
