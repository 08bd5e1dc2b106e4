package server

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/danmuck/remotectl/internal/codec"
	"github.com/danmuck/remotectl/internal/command"
	"github.com/danmuck/remotectl/internal/ops/builtin"
	"github.com/danmuck/remotectl/internal/protocol/frame"
	"github.com/danmuck/remotectl/internal/result"
	"github.com/danmuck/remotectl/internal/storage"
	"github.com/danmuck/remotectl/internal/testutil/testlog"
)

type stepSpec struct {
	entry  string
	source string
	args   []any
}

func op(entry string, args ...any) stepSpec { return stepSpec{entry: entry, args: args} }

func lua(entry, source string, args ...any) stepSpec {
	return stepSpec{entry: entry, source: source, args: args}
}

func clientCodec(t *testing.T) *codec.Registry {
	t.Helper()
	reg := codec.NewRegistry()
	if err := builtin.RegisterTypes(reg); err != nil {
		t.Fatalf("register types: %v", err)
	}
	return reg
}

func encodeChain(t *testing.T, reg *codec.Registry, dialect command.Dialect, steps ...stepSpec) []byte {
	t.Helper()
	cmds := make([]command.Command, 0, len(steps))
	for _, s := range steps {
		raw := make([][]byte, 0, len(s.args))
		for _, a := range s.args {
			b, err := reg.Marshal(a)
			if err != nil {
				t.Fatalf("marshal arg: %v", err)
			}
			raw = append(raw, b)
		}
		payload, err := command.MarshalInvocation(command.Invocation{Entry: s.entry, Args: raw})
		if err != nil {
			t.Fatalf("marshal invocation: %v", err)
		}
		def, err := command.MarshalDefinition(command.Definition{Name: s.entry, Dialect: dialect, Source: s.source})
		if err != nil {
			t.Fatalf("marshal definition: %v", err)
		}
		c, err := command.New(dialect, payload, def, nil)
		if err != nil {
			t.Fatalf("new command: %v", err)
		}
		cmds = append(cmds, c)
	}
	chain, err := command.NewChain(dialect, cmds...)
	if err != nil {
		t.Fatalf("new chain: %v", err)
	}
	data, err := command.EncodeChain(chain, frame.DefaultLimits())
	if err != nil {
		t.Fatalf("encode chain: %v", err)
	}
	return data
}

func execute(t *testing.T, r *Receiver, reg *codec.Registry, request []byte) result.Result {
	t.Helper()
	out, err := r.ExecuteBytes(context.Background(), request)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	res, err := result.Read(bytes.NewReader(out), frame.DefaultLimits(), reg)
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	return res
}

func standard(t *testing.T, contexts storage.Factory) *Receiver {
	t.Helper()
	r, err := NewStandard(Config{Contexts: contexts})
	if err != nil {
		t.Fatalf("new standard: %v", err)
	}
	return r
}

func TestOpChainThreadsValues(t *testing.T) {
	testlog.Start(t)
	reg := clientCodec(t)
	r := standard(t, nil)

	res := execute(t, r, reg, encodeChain(t, reg, command.DialectOp, op("math.add", 1), op("math.mul", 2)))
	if res.Kind() != result.KindValue {
		t.Fatalf("expected Value, got %s", res)
	}
	if v, _ := res.Decode(reg); v != int64(2) {
		t.Fatalf("expected 2, got %v", v)
	}
}

func TestOpChainDivisionByZeroIsFailure(t *testing.T) {
	testlog.Start(t)
	reg := clientCodec(t)
	r := standard(t, nil)

	res := execute(t, r, reg, encodeChain(t, reg, command.DialectOp, op("value.const", 1), op("math.div", 0), op("ctx.put", "after", true)))
	if res.Kind() != result.KindFailure {
		t.Fatalf("expected Failure, got %s", res)
	}
	v, _ := res.Decode(reg)
	var ae *builtin.ArithmeticError
	if !errors.As(v.(error), &ae) || ae.Message != "division by zero" {
		t.Fatalf("expected ArithmeticError, got %#v", v)
	}
}

func TestEmptyContextsAreNotShared(t *testing.T) {
	testlog.Start(t)
	reg := clientCodec(t)
	r := standard(t, storage.Empty())

	execute(t, r, reg, encodeChain(t, reg, command.DialectOp, op("ctx.put", "k", "v")))
	res := execute(t, r, reg, encodeChain(t, reg, command.DialectOp, op("ctx.get", "k")))
	v, _ := res.Decode(reg)
	var mk *storage.MissingKeyError
	if res.Kind() != result.KindFailure || !errors.As(v.(error), &mk) || mk.Key != "k" {
		t.Fatalf("second chain saw the first chain's context: %s", res)
	}
}

func TestSeededContextIsVisible(t *testing.T) {
	testlog.Start(t)
	reg := clientCodec(t)
	r := standard(t, storage.Seeded(map[string]any{"region": "edge-1"}))
	res := execute(t, r, reg, encodeChain(t, reg, command.DialectOp, op("ctx.get", "region")))
	if v, _ := res.Decode(reg); v != "edge-1" {
		t.Fatalf("expected seeded value, got %s", res)
	}
}

func TestLuaChainThreadsValues(t *testing.T) {
	testlog.Start(t)
	reg := clientCodec(t)
	r := standard(t, nil)

	res := execute(t, r, reg, encodeChain(t, reg, command.DialectLua,
		lua("seed", `return function(n) ctx.set("n", n) return n end`, int64(20)),
		lua("half", `return function(x) return x / 2 end`),
		lua("label", `return function(prefix, x) return prefix .. x .. "/" .. ctx.get("n") end`, "v="),
	))
	if v, _ := res.Decode(reg); v != "v=10/20" {
		t.Fatalf("unexpected result %s", res)
	}
}

func TestUnknownDialectIsChainTypeNotFound(t *testing.T) {
	testlog.Start(t)
	reg := clientCodec(t)
	r := standard(t, nil)

	_, err := r.ExecuteBytes(context.Background(), encodeChain(t, reg, "python", op("anything")))
	var ctn *command.ChainTypeNotFoundError
	if !errors.As(err, &ctn) || ctn.Dialect != "python" {
		t.Fatalf("expected ChainTypeNotFoundError, got %v", err)
	}
}

func TestMissingRunnerIsUnsupportedCommandType(t *testing.T) {
	testlog.Start(t)
	reg := clientCodec(t)
	r := NewReceiver()

	_, err := r.ExecuteBytes(context.Background(), encodeChain(t, reg, command.DialectLua, lua("f", `return function() end`)))
	var uct *UnsupportedCommandTypeError
	if !errors.As(err, &uct) || uct.Dialect != command.DialectLua || !errors.Is(err, ErrUnsupportedCommandType) {
		t.Fatalf("expected UnsupportedCommandTypeError, got %v", err)
	}
	if err.Error() != `server: cannot handle commands of type "lua"` {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestMalformedRequestIsProtocolCondition(t *testing.T) {
	testlog.Start(t)
	r := standard(t, nil)
	_, err := r.ExecuteBytes(context.Background(), []byte("definitely not a frame, but long enough to read a header"))
	if !errors.Is(err, frame.ErrBadMagic) {
		t.Fatalf("expected bad magic, got %v", err)
	}
}

func TestContextFactoryErrorIsProtocolCondition(t *testing.T) {
	testlog.Start(t)
	reg := clientCodec(t)
	r := standard(t, storage.Generated(func(command.Chain) (any, error) { return 42, nil }))
	_, err := r.ExecuteBytes(context.Background(), encodeChain(t, reg, command.DialectOp, op("value.const", 1)))
	if !errors.Is(err, storage.ErrInvalidContext) {
		t.Fatalf("expected ErrInvalidContext, got %v", err)
	}
}

func TestRegisterRunnerRules(t *testing.T) {
	testlog.Start(t)
	r := NewReceiver()
	if err := r.Register(nil); !errors.Is(err, ErrRunnerNil) {
		t.Fatalf("expected ErrRunnerNil, got %v", err)
	}
	first := NewChainRunner(command.DialectOp, nil, nil, nil)
	if err := r.Register(first); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(NewChainRunner(command.DialectOp, nil, nil, nil)); !errors.Is(err, ErrRunnerExists) {
		t.Fatalf("expected ErrRunnerExists, got %v", err)
	}
	if got := r.Dialects(); len(got) != 1 || got[0] != command.DialectOp {
		t.Fatalf("unexpected dialects %v", got)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.runners[command.DialectOp] != first {
		t.Fatalf("first registration must win")
	}
}

type echoRunner struct {
	dialect command.Dialect
	ran     int
}

func (r *echoRunner) Dialect() command.Dialect { return r.dialect }

func (r *echoRunner) Run(context.Context, command.Chain) (result.Result, error) {
	r.ran++
	return result.Null(), nil
}

func TestRegisteredDialectBecomesKnown(t *testing.T) {
	testlog.Start(t)
	reg := clientCodec(t)
	r := NewReceiver()
	sql := &echoRunner{dialect: "sql"}
	if err := r.Register(sql); err != nil {
		t.Fatalf("register: %v", err)
	}

	res := execute(t, r, reg, encodeChain(t, reg, "sql", lua("select", "select 1")))
	if res.Kind() != result.KindNull || sql.ran != 1 {
		t.Fatalf("expected the sql runner to answer, got %s ran=%d", res, sql.ran)
	}

	_, err := r.ExecuteBytes(context.Background(), encodeChain(t, reg, "python", op("anything")))
	var ctn *command.ChainTypeNotFoundError
	if !errors.As(err, &ctn) {
		t.Fatalf("unregistered dialects stay unknown, got %v", err)
	}
}

func TestKnownDialectsKeepRegisteredOnes(t *testing.T) {
	testlog.Start(t)
	reg := clientCodec(t)
	r := NewReceiver(WithKnownDialects(command.DialectOp))
	if err := r.Register(&echoRunner{dialect: "sql"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if res := execute(t, r, reg, encodeChain(t, reg, "sql", lua("select", "select 1"))); res.Kind() != result.KindNull {
		t.Fatalf("unexpected result %s", res)
	}
}
