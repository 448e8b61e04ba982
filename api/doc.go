// Package api defines the protocol vocabulary shared by transaction
// coordinator participants and the coordinator: service kinds, operation
// phases, result codes, configuration modes and the per-controller result
// records exchanged during commit and audit.
//
// Numeric values of every enumeration are part of the wire format.
package api
