package session

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed reports a payload that does not decode into typed fields.
var ErrMalformed = errors.New("session: malformed payload")

// A payload is a flat sequence of protobuf wire records. The record's field
// number carries the FieldType; integers use varint and strings or blobs use
// length-delimited records. Record order is field order.

// Encode serialises fields.
func Encode(fields []Field) []byte {
	var b []byte
	for _, f := range fields {
		b = AppendField(b, f)
	}
	return b
}

// AppendField appends one encoded field to b.
func AppendField(b []byte, f Field) []byte {
	num := protowire.Number(f.Type)
	switch f.Type {
	case TypeUint8, TypeUint32, TypeUint64:
		b = protowire.AppendTag(b, num, protowire.VarintType)
		b = protowire.AppendVarint(b, f.Num)
	case TypeString:
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, f.Str)
	case TypeBinary:
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, f.Bin)
	}
	return b
}

// Decode parses a payload produced by Encode.
func Decode(b []byte) ([]Field, error) {
	var fields []Field
	for len(b) > 0 {
		num, wt, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: field %d tag: %v", ErrMalformed, len(fields), protowire.ParseError(n))
		}
		b = b[n:]
		ft := FieldType(num)
		switch ft {
		case TypeUint8, TypeUint32, TypeUint64:
			if wt != protowire.VarintType {
				return nil, fmt.Errorf("%w: field %d: %s with wire type %d", ErrMalformed, len(fields), ft, wt)
			}
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformed, len(fields), protowire.ParseError(m))
			}
			if (ft == TypeUint8 && v > math.MaxUint8) || (ft == TypeUint32 && v > math.MaxUint32) {
				return nil, fmt.Errorf("%w: field %d: %d overflows %s", ErrMalformed, len(fields), v, ft)
			}
			b = b[m:]
			fields = append(fields, Field{Type: ft, Num: v})
		case TypeString, TypeBinary:
			if wt != protowire.BytesType {
				return nil, fmt.Errorf("%w: field %d: %s with wire type %d", ErrMalformed, len(fields), ft, wt)
			}
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformed, len(fields), protowire.ParseError(m))
			}
			b = b[m:]
			if ft == TypeString {
				fields = append(fields, Field{Type: ft, Str: string(v)})
			} else {
				cp := make([]byte, len(v))
				copy(cp, v)
				fields = append(fields, Field{Type: ft, Bin: cp})
			}
		default:
			return nil, fmt.Errorf("%w: field %d: unknown type %d", ErrMalformed, len(fields), num)
		}
	}
	return fields, nil
}

// EncodeResponse serialises a response: the result code first, then outputs.
func EncodeResponse(result uint32, outputs []Field) []byte {
	b := AppendField(nil, Uint32(result))
	for _, f := range outputs {
		b = AppendField(b, f)
	}
	return b
}

// DecodeResponse splits a response payload into its result code and fields.
func DecodeResponse(b []byte) (uint32, []Field, error) {
	fields, err := Decode(b)
	if err != nil {
		return 0, nil, err
	}
	if len(fields) == 0 || fields[0].Type != TypeUint32 {
		return 0, nil, fmt.Errorf("%w: response without result code", ErrMalformed)
	}
	return uint32(fields[0].Num), fields[1:], nil
}
