// Package session is the boundary between the participant engine and the RPC
// transport. A Session exposes the typed fields of one inbound call and
// collects the typed fields of its response.
package session

import (
	"errors"
	"fmt"
)

// FieldType tags every field carried by a session.
type FieldType uint8

const (
	TypeNone FieldType = iota
	TypeUint8
	TypeUint32
	TypeUint64
	TypeString
	TypeBinary
)

func (t FieldType) String() string {
	switch t {
	case TypeUint8:
		return "uint8"
	case TypeUint32:
		return "uint32"
	case TypeUint64:
		return "uint64"
	case TypeString:
		return "string"
	case TypeBinary:
		return "binary"
	}
	return "none"
}

var (
	// ErrFieldRange reports a read past the last field of a payload.
	ErrFieldRange = errors.New("session: field index out of range")
	// ErrFieldType reports a read whose requested type differs from the field's type.
	ErrFieldType = errors.New("session: field type mismatch")
	// ErrClosed reports a write to a session whose response was already sent.
	ErrClosed = errors.New("session: closed")
	// ErrOutputLimit reports a response that grew past the configured field limit.
	ErrOutputLimit = errors.New("session: output limit exceeded")
)

// IsDecodeError reports whether err describes a malformed or short payload
// rather than a transport failure.
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrFieldRange) || errors.Is(err, ErrFieldType) || errors.Is(err, ErrMalformed)
}

// Reader reads typed fields of an inbound call by position.
type Reader interface {
	Count() int
	TypeAt(index int) FieldType
	ReadUint8(index int) (uint8, error)
	ReadUint32(index int) (uint32, error)
	ReadUint64(index int) (uint64, error)
	ReadString(index int) (string, error)
	ReadBinary(index int) ([]byte, error)
}

// Writer appends typed fields to a response.
type Writer interface {
	WriteUint8(v uint8) error
	WriteUint32(v uint32) error
	WriteUint64(v uint64) error
	WriteString(v string) error
	WriteBinary(v []byte) error
}

// Session is one open RPC exchange.
type Session interface {
	Reader
	Writer
	// SetResult records the leading result code of the response.
	SetResult(code uint32) error
	// DisableTimeout lifts the transport's response deadline for this call.
	DisableTimeout() error
}

// Field is one typed value. Num holds every unsigned integer type.
type Field struct {
	Type FieldType
	Num  uint64
	Str  string
	Bin  []byte
}

func (f Field) String() string {
	switch f.Type {
	case TypeUint8, TypeUint32, TypeUint64:
		return fmt.Sprintf("%s:%d", f.Type, f.Num)
	case TypeString:
		return fmt.Sprintf("string:%q", f.Str)
	case TypeBinary:
		return fmt.Sprintf("binary:%d bytes", len(f.Bin))
	}
	return "none"
}

// Uint8 builds a uint8 field.
func Uint8(v uint8) Field { return Field{Type: TypeUint8, Num: uint64(v)} }

// Uint32 builds a uint32 field.
func Uint32(v uint32) Field { return Field{Type: TypeUint32, Num: uint64(v)} }

// Uint64 builds a uint64 field.
func Uint64(v uint64) Field { return Field{Type: TypeUint64, Num: v} }

// String builds a string field.
func String(v string) Field { return Field{Type: TypeString, Str: v} }

// Binary builds a binary field. The slice is retained.
func Binary(v []byte) Field { return Field{Type: TypeBinary, Bin: v} }
