package tlv

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/remotectl/internal/testutil/testlog"
)

func TestEncodeDecodeFieldsRoundTripPreservesUnknown(t *testing.T) {
	testlog.Start(t)
	in := []Field{
		String(1, "op"),
		{ID: 9999, Type: TypeBytes, Value: []byte{0xAA, 0xBB}}, // unknown field id
	}
	out, err := DecodeFields(EncodeFields(in))
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(out))
	}
	if out[1].ID != 9999 || out[1].Type != TypeBytes || !bytes.Equal(out[1].Value, []byte{0xAA, 0xBB}) {
		t.Fatalf("unknown field not preserved: %+v", out[1])
	}
}

func TestGetFieldsKeepsWireOrder(t *testing.T) {
	testlog.Start(t)
	in := []Field{
		Bytes(5, []byte("a")),
		String(1, "x"),
		Bytes(5, []byte("b")),
		Bytes(5, []byte{}),
	}
	out, err := DecodeFields(EncodeFields(in))
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	got := GetFields(out, 5)
	if len(got) != 3 {
		t.Fatalf("expected 3 repeated fields, got %d", len(got))
	}
	if string(got[0].Value) != "a" || string(got[1].Value) != "b" || len(got[2].Value) != 0 {
		t.Fatalf("unexpected repeated values: %+v", got)
	}
	if len(GetFields(out, 77)) != 0 {
		t.Fatalf("expected no fields for absent id")
	}
}

func TestDecodeFieldsMalformedHeaderIsDeterministic(t *testing.T) {
	testlog.Start(t)
	_, err := DecodeFields([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortFieldHeader) {
		t.Fatalf("expected ErrShortFieldHeader, got %v", err)
	}
}

func TestDecodeFieldsMalformedLengthIsDeterministic(t *testing.T) {
	testlog.Start(t)
	// id=1, type=string, len=5, value only 2 bytes
	payload := []byte{0, 1, TypeString, 0, 0, 0, 5, 'a', 'b'}
	_, err := DecodeFields(payload)
	if !errors.Is(err, ErrShortFieldValue) {
		t.Fatalf("expected ErrShortFieldValue, got %v", err)
	}
}

func TestU8FromBytes(t *testing.T) {
	testlog.Start(t)
	v, err := U8FromBytes(U8(1, 4).Value)
	if err != nil || v != 4 {
		t.Fatalf("unexpected u8 decode: v=%d err=%v", v, err)
	}
	if _, err := U8FromBytes([]byte{1, 2}); err == nil {
		t.Fatalf("expected length error")
	}
}

func TestAppendFieldMatchesEncodeField(t *testing.T) {
	testlog.Start(t)
	prefix := []byte{0xFF}
	f := String(3, "lua")
	got := AppendField(prefix, f)
	if !bytes.Equal(got[1:], EncodeField(f)) || got[0] != 0xFF {
		t.Fatalf("append did not extend dst: %x", got)
	}
	if len(EncodeField(f)) != HeaderLen+3 {
		t.Fatalf("unexpected encoded length")
	}
}

func TestDecodedValuesDoNotAliasPayload(t *testing.T) {
	testlog.Start(t)
	payload := EncodeField(Bytes(1, []byte("abc")))
	out, err := DecodeFields(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	payload[HeaderLen] = 'z'
	if string(out[0].Value) != "abc" {
		t.Fatalf("decoded value aliases payload: %q", out[0].Value)
	}
}
