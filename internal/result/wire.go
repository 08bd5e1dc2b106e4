package result

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/remotectl/internal/codec"
	"github.com/danmuck/remotectl/internal/protocol/frame"
	"github.com/danmuck/remotectl/internal/protocol/schema"
	"github.com/danmuck/remotectl/internal/protocol/tlv"
)

var (
	ErrMalformedResult      = errors.New("result: malformed result")
	ErrTypeNotFoundOnClient = errors.New("result: type not found on client")
)

// Write encodes r as one result frame.
func Write(w io.Writer, r Result, limits frame.Limits) error {
	if !r.kind.valid() {
		return fmt.Errorf("%w: %s", ErrMalformedResult, r.kind)
	}
	fields := []tlv.Field{tlv.U8(schema.FieldResultKind, uint8(r.kind))}
	switch r.kind {
	case KindValue, KindFailure:
		fields = append(fields, tlv.Bytes(schema.FieldResultData, r.data))
	case KindUnrepresentable:
		fields = append(fields, tlv.String(schema.FieldResultRepr, r.repr))
	case KindUnrepresentableFailure:
		fields = append(fields,
			tlv.String(schema.FieldResultRepr, r.repr),
			tlv.Bytes(schema.FieldResultWrapper, r.wrapper),
		)
	}
	if err := schema.Validate(schema.MsgResult, fields); err != nil {
		return err
	}
	f := frame.New(schema.MsgResult, 0, tlv.EncodeFields(fields))
	f.Header.Flags |= frame.FlagIsResponse
	return frame.WriteFrame(w, f, limits)
}

// Encode is Write into a fresh buffer.
func Encode(r Result, limits frame.Limits) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, r, limits); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Read decodes one result frame and checks that every carried payload names a
// type known to reg. Unknown types fail with ErrTypeNotFoundOnClient wrapping
// the codec's TypeNotFoundError.
func Read(rd io.Reader, limits frame.Limits, reg *codec.Registry) (Result, error) {
	f, err := frame.ReadExpected(rd, limits, schema.MsgResult)
	if err != nil {
		return Result{}, err
	}
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return Result{}, err
	}
	if err := schema.Validate(schema.MsgResult, fields); err != nil {
		return Result{}, err
	}

	kf, _ := tlv.GetField(fields, schema.FieldResultKind)
	raw, err := tlv.U8FromBytes(kf.Value)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	kind := Kind(raw)

	switch kind {
	case KindNull:
		return Null(), nil
	case KindValue, KindFailure:
		data, err := requireField(fields, schema.FieldResultData, tlv.TypeBytes, kind)
		if err != nil {
			return Result{}, err
		}
		if err := resolve(reg, data); err != nil {
			return Result{}, err
		}
		if kind == KindValue {
			return Value(data), nil
		}
		return Failure(data), nil
	case KindUnrepresentable:
		repr, err := requireField(fields, schema.FieldResultRepr, tlv.TypeString, kind)
		if err != nil {
			return Result{}, err
		}
		return Unrepresentable(string(repr)), nil
	case KindUnrepresentableFailure:
		repr, err := requireField(fields, schema.FieldResultRepr, tlv.TypeString, kind)
		if err != nil {
			return Result{}, err
		}
		wrapper, err := requireField(fields, schema.FieldResultWrapper, tlv.TypeBytes, kind)
		if err != nil {
			return Result{}, err
		}
		if err := resolve(reg, wrapper); err != nil {
			return Result{}, err
		}
		return UnrepresentableFailure(string(repr), wrapper), nil
	default:
		return Result{}, fmt.Errorf("%w: unknown kind %d", ErrMalformedResult, raw)
	}
}

// Decode returns the carried value of a Value, the carried error of a Failure,
// or the stand-in error of an UnrepresentableFailure. Null decodes to nil.
func (r Result) Decode(reg *codec.Registry) (any, error) {
	var data []byte
	switch r.kind {
	case KindNull:
		return nil, nil
	case KindValue, KindFailure:
		data = r.data
	case KindUnrepresentableFailure:
		data = r.wrapper
	default:
		return nil, fmt.Errorf("%w: %s carries no encoded payload", ErrMalformedResult, r.kind)
	}
	v, err := reg.Unmarshal(data)
	if errors.Is(err, codec.ErrTypeNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrTypeNotFoundOnClient, err)
	}
	return v, err
}

func requireField(fields []tlv.Field, id uint16, typ uint8, kind Kind) ([]byte, error) {
	f, ok := tlv.GetField(fields, id)
	if !ok {
		return nil, fmt.Errorf("%w: %s missing field %d", ErrMalformedResult, kind, id)
	}
	if err := tlv.MustType(f, typ); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	return f.Value, nil
}

func resolve(reg *codec.Registry, data []byte) error {
	err := reg.Resolve(data)
	if errors.Is(err, codec.ErrTypeNotFound) {
		return fmt.Errorf("%w: %w", ErrTypeNotFoundOnClient, err)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	return nil
}
