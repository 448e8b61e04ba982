package client

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"pkt.systems/tclib/session"
)

// ParseField parses a "type:value" argument. Types are u8, u32, u64, str and
// bin (hex encoded).
func ParseField(arg string) (session.Field, error) {
	typ, value, ok := strings.Cut(arg, ":")
	if !ok {
		return session.Field{}, fmt.Errorf("field %q: want type:value", arg)
	}
	switch strings.ToLower(typ) {
	case "u8", "uint8":
		v, err := strconv.ParseUint(value, 0, 8)
		if err != nil {
			return session.Field{}, fmt.Errorf("field %q: %w", arg, err)
		}
		return session.Uint8(uint8(v)), nil
	case "u32", "uint32":
		v, err := strconv.ParseUint(value, 0, 32)
		if err != nil {
			return session.Field{}, fmt.Errorf("field %q: %w", arg, err)
		}
		return session.Uint32(uint32(v)), nil
	case "u64", "uint64":
		v, err := strconv.ParseUint(value, 0, 64)
		if err != nil {
			return session.Field{}, fmt.Errorf("field %q: %w", arg, err)
		}
		return session.Uint64(v), nil
	case "str", "string":
		return session.String(value), nil
	case "bin", "binary":
		v, err := hex.DecodeString(value)
		if err != nil {
			return session.Field{}, fmt.Errorf("field %q: %w", arg, err)
		}
		return session.Binary(v), nil
	}
	return session.Field{}, fmt.Errorf("field %q: unknown type %q", arg, typ)
}

// ParseFields parses every argument with ParseField.
func ParseFields(args []string) ([]session.Field, error) {
	out := make([]session.Field, 0, len(args))
	for _, arg := range args {
		f, err := ParseField(arg)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// FormatField renders f in the form ParseField accepts.
func FormatField(f session.Field) string {
	switch f.Type {
	case session.TypeUint8:
		return "u8:" + strconv.FormatUint(f.Num, 10)
	case session.TypeUint32:
		return "u32:" + strconv.FormatUint(f.Num, 10)
	case session.TypeUint64:
		return "u64:" + strconv.FormatUint(f.Num, 10)
	case session.TypeString:
		return "str:" + f.Str
	case session.TypeBinary:
		return "bin:" + hex.EncodeToString(f.Bin)
	}
	return "none:"
}
