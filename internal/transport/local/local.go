// Package local hands chains to a receiver in the same process. The chain
// still crosses the full wire encoding in both directions.
package local

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/danmuck/remotectl/internal/codec"
	"github.com/danmuck/remotectl/internal/command"
	"github.com/danmuck/remotectl/internal/protocol/frame"
	"github.com/danmuck/remotectl/internal/result"
)

// Executor is the receiving side, usually a *server.Receiver.
type Executor interface {
	Execute(ctx context.Context, in io.Reader, out io.Writer) error
}

type Transport struct {
	exec   Executor
	codec  *codec.Registry
	limits frame.Limits
}

func New(exec Executor, reg *codec.Registry, limits frame.Limits) *Transport {
	if limits.MaxPayloadBytes == 0 {
		limits = frame.DefaultLimits()
	}
	return &Transport{exec: exec, codec: reg, limits: limits}
}

func (t *Transport) Send(ctx context.Context, chain command.Chain) (result.Result, error) {
	var req, resp bytes.Buffer
	if err := command.WriteChain(&req, chain, t.limits); err != nil {
		return result.Result{}, err
	}
	if err := t.exec.Execute(ctx, &req, &resp); err != nil {
		return result.Result{}, fmt.Errorf("local: %w", err)
	}
	return result.Read(&resp, t.limits, t.codec)
}
