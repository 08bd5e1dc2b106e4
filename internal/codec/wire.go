package codec

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// MaxNesting is the deepest list or map nesting a value may carry.
const MaxNesting = 32

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	errUnregistered = errors.New("type is not registered")
	errTooDeep      = errors.New("value nested too deeply")
)

func init() {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: failed to create CBOR enc mode: %v", err))
	}
	encMode = em

	dm, err := cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		MaxNestedLevels: MaxNesting + 4,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: failed to create CBOR dec mode: %v", err))
	}
	decMode = dm
}

// envelope is the wire shape of every carried value.
type envelope struct {
	Type string          `cbor:"1,keyasint"`
	Data cbor.RawMessage `cbor:"2,keyasint,omitempty"`
}

// Marshal encodes v inside a named envelope. It fails with a
// NotSerializableError when v's type is unregistered, when a list or map holds
// anything but plain data, or when CBOR cannot encode the value.
func (r *Registry) Marshal(v any) (out []byte, err error) {
	name, ok := r.NameOf(v)
	if !ok {
		return nil, &NotSerializableError{Type: fmt.Sprintf("%T", v), Err: errUnregistered}
	}
	if err := checkNested(v, 0); err != nil {
		return nil, &NotSerializableError{Type: name, Err: err}
	}
	defer func() {
		if p := recover(); p != nil {
			out = nil
			err = &NotSerializableError{Type: name, Err: fmt.Errorf("encoder panic: %v", p)}
		}
	}()

	env := envelope{Type: name}
	if v != nil {
		data, err := encMode.Marshal(v)
		if err != nil {
			return nil, &NotSerializableError{Type: name, Err: err}
		}
		env.Data = data
	}
	return encMode.Marshal(env)
}

// Unmarshal decodes an envelope produced by Marshal. An unknown type name
// fails with a TypeNotFoundError; anything else undecodable is ErrMalformed.
func (r *Registry) Unmarshal(data []byte) (any, error) {
	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == NilType {
		return nil, nil
	}
	t, ok := r.Lookup(env.Type)
	if !ok {
		return nil, &TypeNotFoundError{Name: env.Type}
	}
	ptr := reflect.New(t)
	if err := decMode.Unmarshal(env.Data, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	out := ptr.Elem().Interface()
	switch out.(type) {
	case []any, map[string]any:
		out = normalize(out)
	}
	return out, nil
}

// TypeName reads the type name of an envelope without decoding its data.
func TypeName(data []byte) (string, error) {
	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return env.Type, nil
}

// Resolve checks that the envelope's type is known to r.
func (r *Registry) Resolve(data []byte) error {
	name, err := TypeName(data)
	if err != nil {
		return err
	}
	if !r.Has(name) {
		return &TypeNotFoundError{Name: name}
	}
	return nil
}

// EncodeRaw encodes a protocol struct with the canonical mode. It carries no
// type name.
func EncodeRaw(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// DecodeRaw is the inverse of EncodeRaw.
func DecodeRaw(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func checkNested(v any, depth int) error {
	if depth > MaxNesting {
		return errTooDeep
	}
	switch x := v.(type) {
	case []any:
		for i, e := range x {
			if !isPlain(e) {
				return fmt.Errorf("list element %d has unsupported type %T", i, e)
			}
			if err := checkNested(e, depth+1); err != nil {
				return err
			}
		}
	case map[string]any:
		for k, e := range x {
			if !isPlain(e) {
				return fmt.Errorf("map entry %q has unsupported type %T", k, e)
			}
			if err := checkNested(e, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// isPlain reports whether v keeps its meaning when decoded into an untyped
// list or map element.
func isPlain(v any) bool {
	switch v.(type) {
	case nil, bool, string, []byte, []any, map[string]any,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

// normalize folds CBOR's unsigned integers back to int64 inside untyped
// containers so both ends see the same numeric kind.
func normalize(v any) any {
	switch x := v.(type) {
	case uint64:
		if x <= math.MaxInt64 {
			return int64(x)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = normalize(e)
		}
		return x
	case map[string]any:
		for k, e := range x {
			x[k] = normalize(e)
		}
		return x
	default:
		return v
	}
}
