package local

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/danmuck/remotectl/internal/codec"
	"github.com/danmuck/remotectl/internal/command"
	"github.com/danmuck/remotectl/internal/protocol/frame"
	"github.com/danmuck/remotectl/internal/result"
	"github.com/danmuck/remotectl/internal/testutil/testlog"
)

type executorFunc func(ctx context.Context, in io.Reader, out io.Writer) error

func (f executorFunc) Execute(ctx context.Context, in io.Reader, out io.Writer) error {
	return f(ctx, in, out)
}

func chain(t *testing.T) command.Chain {
	t.Helper()
	payload, _ := command.MarshalInvocation(command.Invocation{Entry: "value.identity"})
	def, _ := command.MarshalDefinition(command.Definition{Name: "value.identity", Dialect: command.DialectOp})
	c, err := command.New(command.DialectOp, payload, def, nil)
	if err != nil {
		t.Fatalf("new command: %v", err)
	}
	ch, err := command.NewChain(command.DialectOp, c)
	if err != nil {
		t.Fatalf("new chain: %v", err)
	}
	return ch
}

func TestSendRoundTrip(t *testing.T) {
	testlog.Start(t)
	reg := codec.NewRegistry()
	var seen command.Chain
	exec := executorFunc(func(_ context.Context, in io.Reader, out io.Writer) error {
		ch, err := command.ReadChain(in, frame.DefaultLimits(), command.KnownDialects(command.DialectOp))
		if err != nil {
			return err
		}
		seen = ch
		data, _ := reg.Marshal("pong")
		return result.Write(out, result.Value(data), frame.DefaultLimits())
	})

	sent := chain(t)
	res, err := New(exec, reg, frame.Limits{}).Send(context.Background(), sent)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if seen.ID() != sent.ID() || seen.Len() != 1 {
		t.Fatalf("receiver saw a different chain")
	}
	if v, _ := res.Decode(reg); v != "pong" {
		t.Fatalf("unexpected result %s", res)
	}
}

func TestSendReturnsProtocolConditions(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("rejected")
	exec := executorFunc(func(context.Context, io.Reader, io.Writer) error { return boom })
	_, err := New(exec, codec.NewRegistry(), frame.DefaultLimits()).Send(context.Background(), chain(t))
	if !errors.Is(err, boom) {
		t.Fatalf("expected executor error, got %v", err)
	}
}
