package result

import (
	"fmt"
	"reflect"

	"github.com/danmuck/remotectl/internal/codec"
	"github.com/rs/zerolog/log"
)

// Factory turns produced values and returned errors into Results using one
// codec registry.
type Factory struct {
	reg *codec.Registry
}

func NewFactory(reg *codec.Registry) *Factory {
	return &Factory{reg: reg}
}

// ForValue returns Null for absent values, Value when v encodes, and
// Unrepresentable(fmt.Sprint(v)) otherwise.
func (f *Factory) ForValue(v any) Result {
	if isAbsent(v) {
		return Null()
	}
	data, err := f.reg.Marshal(v)
	if err != nil {
		log.Debug().Err(err).Str("type", fmt.Sprintf("%T", v)).Msg("result value not serializable")
		return Unrepresentable(fmt.Sprint(v))
	}
	return Value(data)
}

// ForFailure returns Failure when err encodes and UnrepresentableFailure with
// an OpaqueError stand-in otherwise. A stand-in that cannot be encoded is a
// defect in the registry and panics.
func (f *Factory) ForFailure(err error) Result {
	if err == nil {
		panic("result: ForFailure called with nil error")
	}
	data, mErr := f.reg.Marshal(err)
	if mErr == nil {
		return Failure(data)
	}
	log.Debug().Err(mErr).Str("type", fmt.Sprintf("%T", err)).Msg("result failure not serializable")

	msg := err.Error()
	wrapper, wErr := f.reg.Marshal(&codec.OpaqueError{Type: fmt.Sprintf("%T", err), Message: msg})
	if wErr != nil {
		panic(fmt.Sprintf("result: failure carrier not serializable: %v", wErr))
	}
	return UnrepresentableFailure(msg, wrapper)
}

func isAbsent(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
