package codec

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrTypeExists      = errors.New("codec: type already registered")
	ErrInvalidTypeName = errors.New("codec: invalid type name")
	ErrNilSample       = errors.New("codec: nil sample")
)

// NilType is the wire name of the absent value.
const NilType = "nil"

// Registry maps stable wire names to Go types. Both ends of a connection must
// register the same names for values to survive the trip.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]reflect.Type
	byType map[reflect.Type]string
}

// NewRegistry returns a registry preloaded with the builtin scalar, container
// and carrier types.
func NewRegistry() *Registry {
	r := &Registry{
		byName: make(map[string]reflect.Type),
		byType: make(map[reflect.Type]string),
	}
	for _, b := range builtins {
		r.add(b.name, reflect.TypeOf(b.sample))
	}
	return r
}

var builtins = []struct {
	name   string
	sample any
}{
	{"bool", false},
	{"int", int(0)},
	{"int8", int8(0)},
	{"int16", int16(0)},
	{"int32", int32(0)},
	{"int64", int64(0)},
	{"uint", uint(0)},
	{"uint8", uint8(0)},
	{"uint16", uint16(0)},
	{"uint32", uint32(0)},
	{"uint64", uint64(0)},
	{"float32", float32(0)},
	{"float64", float64(0)},
	{"string", ""},
	{"bytes", []byte(nil)},
	{"list", []any(nil)},
	{"map", map[string]any(nil)},
	{"strings", []string(nil)},
	{"string_map", map[string]string(nil)},
	{"time", time.Time{}},
	{"duration", time.Duration(0)},
	{OpaqueErrorType, &OpaqueError{}},
}

// Register binds name to the dynamic type of sample. Pointer samples register
// the pointer type, which is the usual shape for error values.
func (r *Registry) Register(name string, sample any) error {
	if sample == nil {
		return ErrNilSample
	}
	if !isValidName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidTypeName, name)
	}
	t := reflect.TypeOf(sample)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byName[name]; ok {
		if existing == t {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrTypeExists, name)
	}
	if existing, ok := r.byType[t]; ok {
		return fmt.Errorf("%w: %s already registered as %s", ErrTypeExists, t, existing)
	}
	r.add(name, t)
	return nil
}

// MustRegister is Register for startup wiring.
func (r *Registry) MustRegister(name string, sample any) {
	if err := r.Register(name, sample); err != nil {
		panic(err)
	}
}

func (r *Registry) add(name string, t reflect.Type) {
	r.byName[name] = t
	r.byType[t] = name
}

// NameOf returns the wire name registered for v's dynamic type.
func (r *Registry) NameOf(v any) (string, bool) {
	if v == nil {
		return NilType, true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byType[reflect.TypeOf(v)]
	return name, ok
}

// Lookup returns the Go type registered under name.
func (r *Registry) Lookup(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// Has reports whether name resolves, treating the nil type as always present.
func (r *Registry) Has(name string) bool {
	if name == NilType {
		return true
	}
	_, ok := r.Lookup(name)
	return ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func isValidName(name string) bool {
	if name == "" || name == NilType || len(name) > 128 {
		return false
	}
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '.', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
