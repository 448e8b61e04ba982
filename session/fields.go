package session

import "fmt"

// Fields is a decoded field sequence read by index. It implements Reader.
type Fields []Field

func (fs Fields) Count() int { return len(fs) }

func (fs Fields) TypeAt(index int) FieldType {
	if index < 0 || index >= len(fs) {
		return TypeNone
	}
	return fs[index].Type
}

func (fs Fields) field(index int, want FieldType) (Field, error) {
	if index < 0 || index >= len(fs) {
		return Field{}, fmt.Errorf("%w: %d of %d", ErrFieldRange, index, len(fs))
	}
	f := fs[index]
	if f.Type != want {
		return Field{}, fmt.Errorf("%w: field %d is %s, want %s", ErrFieldType, index, f.Type, want)
	}
	return f, nil
}

func (fs Fields) ReadUint8(index int) (uint8, error) {
	f, err := fs.field(index, TypeUint8)
	return uint8(f.Num), err
}

func (fs Fields) ReadUint32(index int) (uint32, error) {
	f, err := fs.field(index, TypeUint32)
	return uint32(f.Num), err
}

func (fs Fields) ReadUint64(index int) (uint64, error) {
	f, err := fs.field(index, TypeUint64)
	return f.Num, err
}

func (fs Fields) ReadString(index int) (string, error) {
	f, err := fs.field(index, TypeString)
	return f.Str, err
}

func (fs Fields) ReadBinary(index int) ([]byte, error) {
	f, err := fs.field(index, TypeBinary)
	return f.Bin, err
}

var _ Reader = Fields(nil)
