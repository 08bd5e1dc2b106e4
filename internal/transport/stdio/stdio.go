// Package stdio runs a receiver as a process and exchanges one chain and one
// Result over its standard input and output.
package stdio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/remotectl/internal/codec"
	"github.com/danmuck/remotectl/internal/command"
	"github.com/danmuck/remotectl/internal/protocol/frame"
	"github.com/danmuck/remotectl/internal/result"
	"github.com/rs/zerolog/log"
)

// DefaultCommand is what the receiving side runs.
var DefaultCommand = []string{"remotectl", "receive"}

const maxStderr = 4096

// ProcessError is a receiver process that exited without a Result.
type ProcessError struct {
	Command string
	Stderr  string
	Err     error
}

func (e *ProcessError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("stdio: %s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("stdio: %s: %v: %s", e.Command, e.Err, e.Stderr)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

type Transport struct {
	runner  Runner
	command []string
	codec   *codec.Registry
	limits  frame.Limits
}

// NewTransport runs argv (DefaultCommand when empty) through runner for every
// chain.
func NewTransport(runner Runner, reg *codec.Registry, limits frame.Limits, argv ...string) *Transport {
	if len(argv) == 0 {
		argv = DefaultCommand
	}
	if limits.MaxPayloadBytes == 0 {
		limits = frame.DefaultLimits()
	}
	return &Transport{runner: runner, command: argv, codec: reg, limits: limits}
}

func (t *Transport) Send(ctx context.Context, chain command.Chain) (result.Result, error) {
	var stdin, stdout bytes.Buffer
	if err := command.WriteChain(&stdin, chain, t.limits); err != nil {
		return result.Result{}, err
	}
	stderr := &limitedBuffer{max: maxStderr}
	if err := t.runner.Run(ctx, t.command[0], t.command[1:], &stdin, &stdout, stderr); err != nil {
		return result.Result{}, &ProcessError{
			Command: strings.Join(t.command, " "),
			Stderr:  strings.TrimSpace(stderr.String()),
			Err:     err,
		}
	}
	return result.Read(&stdout, t.limits, t.codec)
}

// Executor is the receiving side, usually a *server.Receiver.
type Executor interface {
	Execute(ctx context.Context, in io.Reader, out io.Writer) error
}

// Serve executes the one chain read from in and writes its Result to out.
// Protocol conditions are logged and returned so the process exits non-zero.
func Serve(ctx context.Context, exec Executor, in io.Reader, out io.Writer) error {
	if err := exec.Execute(ctx, in, out); err != nil {
		log.Error().Err(err).Msg("stdio receive failed")
		return err
	}
	return nil
}

// limitedBuffer keeps the first max bytes written to it.
type limitedBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string { return b.buf.String() }
