// Package tlv encodes the id/type/length/value fields carried in a frame
// payload: a big-endian u16 id, a u8 type, a u32 length, then the value.
package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const HeaderLen = 7

var (
	ErrShortFieldHeader = errors.New("tlv: short field header")
	ErrShortFieldValue  = errors.New("tlv: short field value")
)

const (
	TypeU8     uint8 = 1
	TypeU16    uint8 = 2
	TypeU32    uint8 = 3
	TypeU64    uint8 = 4
	TypeBool   uint8 = 5
	TypeString uint8 = 6
	TypeBytes  uint8 = 7
)

type Field struct {
	ID    uint16
	Type  uint8
	Value []byte
}

func String(id uint16, v string) Field { return Field{ID: id, Type: TypeString, Value: []byte(v)} }

func Bytes(id uint16, v []byte) Field { return Field{ID: id, Type: TypeBytes, Value: v} }

func U8(id uint16, v uint8) Field { return Field{ID: id, Type: TypeU8, Value: []byte{v}} }

// AppendField appends the encoding of f to dst.
func AppendField(dst []byte, f Field) []byte {
	dst = binary.BigEndian.AppendUint16(dst, f.ID)
	dst = append(dst, f.Type)
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(f.Value)))
	return append(dst, f.Value...)
}

func EncodeField(f Field) []byte {
	return AppendField(make([]byte, 0, HeaderLen+len(f.Value)), f)
}

func EncodeFields(fields []Field) []byte {
	size := 0
	for _, f := range fields {
		size += HeaderLen + len(f.Value)
	}
	out := make([]byte, 0, size)
	for _, f := range fields {
		out = AppendField(out, f)
	}
	return out
}

// DecodeFields splits payload into fields. Values are copied, so the result
// does not alias payload.
func DecodeFields(payload []byte) ([]Field, error) {
	var fields []Field
	for rest := payload; len(rest) > 0; {
		offset := len(payload) - len(rest)
		if len(rest) < HeaderLen {
			return nil, fmt.Errorf("%w at offset %d", ErrShortFieldHeader, offset)
		}
		f := Field{
			ID:   binary.BigEndian.Uint16(rest),
			Type: rest[2],
		}
		n := binary.BigEndian.Uint32(rest[3:HeaderLen])
		rest = rest[HeaderLen:]
		if uint64(n) > uint64(len(rest)) {
			return nil, fmt.Errorf("%w: field %d wants %d bytes, %d left", ErrShortFieldValue, f.ID, n, len(rest))
		}
		f.Value = make([]byte, n)
		copy(f.Value, rest)
		rest = rest[n:]
		fields = append(fields, f)
	}
	return fields, nil
}

func GetField(fields []Field, id uint16) (Field, bool) {
	for _, f := range fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// GetFields returns every field with the given id in wire order. Repeated
// ids carry list members.
func GetFields(fields []Field, id uint16) []Field {
	var out []Field
	for _, f := range fields {
		if f.ID == id {
			out = append(out, f)
		}
	}
	return out
}

func MustType(f Field, expected uint8) error {
	if f.Type == expected {
		return nil
	}
	return fmt.Errorf("tlv: field %d type mismatch: got %d want %d", f.ID, f.Type, expected)
}

func U8FromBytes(b []byte) (uint8, error) {
	if len(b) != 1 {
		return 0, fmt.Errorf("tlv: invalid u8 length: %d", len(b))
	}
	return b[0], nil
}
