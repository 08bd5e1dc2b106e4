package builtin

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/danmuck/remotectl/internal/codec"
	"github.com/danmuck/remotectl/internal/ops"
	"github.com/danmuck/remotectl/internal/storage"
	"github.com/danmuck/remotectl/internal/testutil/testlog"
)

type registryScope struct{ reg *ops.Registry }

func (s registryScope) Resolve(id string) (ops.Operation, error) {
	op, ok := s.reg.Resolve(id)
	if !ok {
		return nil, errors.New("not installed: " + id)
	}
	return op, nil
}

func newRegistry(t *testing.T) *ops.Registry {
	t.Helper()
	reg := ops.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register builtins: %v", err)
	}
	return reg
}

func invoke(t *testing.T, reg *ops.Registry, id string, ctx storage.Context, input any, args ...any) (any, error) {
	t.Helper()
	op, ok := reg.Resolve(id)
	if !ok {
		t.Fatalf("missing op %s", id)
	}
	call := ops.Call{Context: ctx, Args: args, Scope: registryScope{reg}}
	if op.Metadata().Params > 0 {
		call.Input = input
	}
	return op.Invoke(call)
}

func TestMathOps(t *testing.T) {
	testlog.Start(t)
	reg := newRegistry(t)
	cases := []struct {
		op    string
		input any
		arg   any
		want  any
	}{
		{opAdd, nil, 1, int64(1)},
		{opMul, int64(1), 2, int64(2)},
		{opSub, int64(5), uint8(7), int64(-2)},
		{opDiv, int64(7), int64(2), int64(3)},
		{opAdd, 1.5, 1, 2.5},
		{opDiv, 1, 4.0, 0.25},
	}
	for _, tc := range cases {
		t.Run(tc.op, func(t *testing.T) {
			got, err := invoke(t, reg, tc.op, storage.New(), tc.input, tc.arg)
			if err != nil {
				t.Fatalf("invoke: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %#v want %#v", got, tc.want)
			}
		})
	}
}

func TestMathFailures(t *testing.T) {
	testlog.Start(t)
	reg := newRegistry(t)
	cases := []struct {
		name  string
		op    string
		input any
		arg   any
		msg   string
	}{
		{"int div zero", opDiv, int64(1), 0, "division by zero"},
		{"float div zero", opDiv, 1.0, 0.0, "division by zero"},
		{"overflow", opAdd, int64(math.MaxInt64), 1, "integer overflow"},
		{"mul overflow", opMul, int64(math.MaxInt64), 2, "integer overflow"},
		{"not a number", opAdd, "x", 1, "operand of type string is not a number"},
		{"huge unsigned", opAdd, uint64(math.MaxUint64), 1, "operand overflows int64"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := invoke(t, reg, tc.op, storage.New(), tc.input, tc.arg)
			var ae *ArithmeticError
			if !errors.As(err, &ae) || ae.Message != tc.msg || ae.Op != tc.op {
				t.Fatalf("expected ArithmeticError %q, got %v", tc.msg, err)
			}
		})
	}
}

func TestContextOps(t *testing.T) {
	testlog.Start(t)
	reg := newRegistry(t)
	ctx := storage.New()

	if _, err := invoke(t, reg, "ctx.put", ctx, nil, "a", "alpha"); err != nil {
		t.Fatalf("ctx.put: %v", err)
	}
	if v, err := invoke(t, reg, "ctx.get", ctx, nil, "a"); err != nil || v != "alpha" {
		t.Fatalf("ctx.get: v=%v err=%v", v, err)
	}
	if _, err := invoke(t, reg, "ctx.set", ctx, int64(9), "b"); err != nil {
		t.Fatalf("ctx.set: %v", err)
	}
	if v, _ := invoke(t, reg, "ctx.incr", ctx, nil, "b", 2); v != int64(11) {
		t.Fatalf("ctx.incr: got %v", v)
	}
	if v, _ := invoke(t, reg, "ctx.incr", ctx, nil, "fresh"); v != int64(1) {
		t.Fatalf("ctx.incr default: got %v", v)
	}
	keys, _ := invoke(t, reg, "ctx.keys", ctx, nil)
	if !reflect.DeepEqual(keys, []string{"a", "b", "fresh"}) {
		t.Fatalf("ctx.keys: %v", keys)
	}
	snap, _ := invoke(t, reg, "ctx.snapshot", ctx, nil)
	if !reflect.DeepEqual(snap, map[string]any{"a": "alpha", "b": int64(11), "fresh": int64(1)}) {
		t.Fatalf("ctx.snapshot: %v", snap)
	}
	if v, _ := invoke(t, reg, "ctx.delete", ctx, "carried", "a"); v != "carried" {
		t.Fatalf("ctx.delete must pass the carried value on, got %v", v)
	}
	_, err := invoke(t, reg, "ctx.get", ctx, nil, "a")
	if !errors.Is(err, storage.ErrMissingKey) {
		t.Fatalf("expected missing key after delete, got %v", err)
	}
	_, err = invoke(t, reg, "ctx.get", ctx, nil, 42)
	var app *ApplicationError
	if !errors.As(err, &app) || app.Code != "bad_argument" {
		t.Fatalf("expected bad_argument, got %v", err)
	}
}

func TestCoreOps(t *testing.T) {
	testlog.Start(t)
	reg := newRegistry(t)

	v, err := invoke(t, reg, "core.apply", storage.New(), int64(3), "math.mul", 4)
	if err != nil || v != int64(12) {
		t.Fatalf("core.apply: v=%v err=%v", v, err)
	}
	v, err = invoke(t, reg, "core.apply", storage.New(), int64(3), "value.const", "k")
	if err != nil || v != "k" {
		t.Fatalf("core.apply zero-param target: v=%v err=%v", v, err)
	}

	_, err = invoke(t, reg, "core.fail", storage.New(), nil, "nope", "teapot")
	var app *ApplicationError
	if !errors.As(err, &app) || app.Code != "teapot" || app.Message != "nope" {
		t.Fatalf("core.fail: %v", err)
	}

	v, err = invoke(t, reg, "text.format", storage.New(), int64(7), "n=%d")
	if err != nil || v != "n=7" {
		t.Fatalf("text.format: v=%v err=%v", v, err)
	}
	if v, _ := invoke(t, reg, "value.const", storage.New(), "ignored", "fixed"); v != "fixed" {
		t.Fatalf("value.const: %v", v)
	}
}

func TestRegisterTypesMakesFailuresEncodable(t *testing.T) {
	testlog.Start(t)
	reg := codec.NewRegistry()
	if err := RegisterTypes(reg); err != nil {
		t.Fatalf("register types: %v", err)
	}
	if err := RegisterTypes(reg); err != nil {
		t.Fatalf("register types twice: %v", err)
	}
	data, err := reg.Marshal(&ArithmeticError{Op: opDiv, Message: "division by zero"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out, err := reg.Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.(error).Error() != "math.div: division by zero" {
		t.Fatalf("unexpected decoded error: %v", out)
	}
}
