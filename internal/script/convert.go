package script

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"time"

	"github.com/Shopify/go-lua"
	"github.com/danmuck/remotectl/internal/codec"
)

// maxExactInt is the largest integer a Lua 5.2 number holds without loss.
const maxExactInt = 1 << 53

// stackSlack covers one nesting level: the table, a key and a value.
const stackSlack = 3

var (
	ErrTooDeep        = errors.New("script: value nested too deeply")
	ErrCyclicTable    = errors.New("script: table refers to itself")
	ErrStackExhausted = errors.New("script: lua stack exhausted")
)

// opaqueValue stands in for a Lua value that has no Go counterpart, such as a
// function or a table that contains itself. It prints the way tostring does,
// which is all the result factory keeps of it.
type opaqueValue struct {
	Repr string
}

func (o opaqueValue) String() string { return o.Repr }

func opaque(state *lua.State, index int) opaqueValue {
	name := lua.TypeNameOf(state, index)
	// Userdata hands back its Go payload, which need not be a pointer.
	if v := state.ToValue(index); v != nil && reflect.ValueOf(v).Kind() == reflect.Pointer {
		return opaqueValue{Repr: fmt.Sprintf("%s: %p", name, v)}
	}
	return opaqueValue{Repr: name}
}

func push(state *lua.State, v any) error {
	return pushDepth(state, v, 0)
}

func pushDepth(state *lua.State, v any, depth int) error {
	if depth > codec.MaxNesting {
		return ErrTooDeep
	}
	if !state.CheckStack(stackSlack) {
		return ErrStackExhausted
	}
	switch x := v.(type) {
	case nil:
		state.PushNil()
	case bool:
		state.PushBoolean(x)
	case string:
		state.PushString(x)
	case []byte:
		state.PushString(string(x))
	case int:
		state.PushNumber(float64(x))
	case int8:
		state.PushNumber(float64(x))
	case int16:
		state.PushNumber(float64(x))
	case int32:
		state.PushNumber(float64(x))
	case int64:
		state.PushNumber(float64(x))
	case uint:
		state.PushNumber(float64(x))
	case uint8:
		state.PushNumber(float64(x))
	case uint16:
		state.PushNumber(float64(x))
	case uint32:
		state.PushNumber(float64(x))
	case uint64:
		state.PushNumber(float64(x))
	case float32:
		state.PushNumber(float64(x))
	case float64:
		state.PushNumber(x)
	case time.Time:
		state.PushString(x.Format(time.RFC3339Nano))
	case time.Duration:
		state.PushNumber(x.Seconds())
	case []string:
		state.CreateTable(len(x), 0)
		for i, s := range x {
			state.PushString(s)
			state.RawSetInt(-2, i+1)
		}
	case []any:
		state.CreateTable(len(x), 0)
		for i, item := range x {
			if err := pushDepth(state, item, depth+1); err != nil {
				state.Pop(1)
				return err
			}
			state.RawSetInt(-2, i+1)
		}
	case map[string]string:
		state.CreateTable(0, len(x))
		for k, s := range x {
			state.PushString(s)
			state.SetField(-2, k)
		}
	case map[string]any:
		state.CreateTable(0, len(x))
		for _, k := range sortedKeys(x) {
			if err := pushDepth(state, x[k], depth+1); err != nil {
				state.Pop(1)
				return err
			}
			state.SetField(-2, k)
		}
	default:
		return fmt.Errorf("values of type %T cannot be passed to lua", v)
	}
	return nil
}

// value converts the Lua value at index into nil, bool, int64, float64,
// string, []any or map[string]any.
func value(state *lua.State, index int) (any, error) {
	c := converter{state: state, open: make(map[any]struct{})}
	return c.value(index, 0)
}

// returned converts a command's return value. Anything that cannot leave the
// script comes back as an opaqueValue.
func returned(state *lua.State, index int) any {
	v, err := value(state, index)
	if err != nil {
		return opaque(state, index)
	}
	return v
}

type converter struct {
	state *lua.State
	// open holds the tables being converted on the current path.
	open map[any]struct{}
}

func (c *converter) value(index, depth int) (any, error) {
	state := c.state
	switch state.TypeOf(index) {
	case lua.TypeNil, lua.TypeNone:
		return nil, nil
	case lua.TypeBoolean:
		return state.ToBoolean(index), nil
	case lua.TypeNumber:
		n, _ := state.ToNumber(index)
		return number(n), nil
	case lua.TypeString:
		s, _ := state.ToString(index)
		return s, nil
	case lua.TypeTable:
		return c.table(index, depth)
	default:
		return nil, fmt.Errorf("lua %s values cannot leave the script", lua.TypeNameOf(state, index))
	}
}

func number(n float64) any {
	if n == math.Trunc(n) && math.Abs(n) <= maxExactInt {
		return int64(n)
	}
	return n
}

// table returns a []any for sequences 1..n and a map[string]any otherwise.
// An empty table becomes an empty map.
func (c *converter) table(index, depth int) (any, error) {
	state := c.state
	if depth > codec.MaxNesting {
		return nil, ErrTooDeep
	}
	if !state.CheckStack(stackSlack) {
		return nil, ErrStackExhausted
	}
	index = state.AbsIndex(index)
	id := state.ToValue(index)
	if _, ok := c.open[id]; ok {
		return nil, ErrCyclicTable
	}
	c.open[id] = struct{}{}
	defer delete(c.open, id)

	isArray := true
	count, maxIndex := 0, 0
	state.PushNil()
	for state.Next(index) {
		if isArray {
			if state.TypeOf(-2) != lua.TypeNumber {
				isArray = false
			} else if i, ok := state.ToInteger(-2); ok && i > 0 {
				count++
				maxIndex = max(maxIndex, i)
			} else {
				isArray = false
			}
		}
		state.Pop(1)
	}

	if isArray && count > 0 && count == maxIndex {
		out := make([]any, 0, count)
		for i := 1; i <= count; i++ {
			state.RawGetInt(index, i)
			v, err := c.value(-1, depth+1)
			state.Pop(1)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}

	out := make(map[string]any, count)
	state.PushNil()
	for state.Next(index) {
		if state.TypeOf(-2) != lua.TypeString {
			kind := lua.TypeNameOf(state, -2)
			state.Pop(2)
			return nil, fmt.Errorf("lua table keys must be strings, got %s", kind)
		}
		key, _ := state.ToString(-2)
		v, err := c.value(-1, depth+1)
		if err != nil {
			state.Pop(2)
			return nil, err
		}
		out[key] = v
		state.Pop(1)
	}
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
