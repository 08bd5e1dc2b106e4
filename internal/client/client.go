// Package client builds command chains from fragments, sends them through a
// transport and turns the Result back into a Go value or error.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/remotectl/internal/codec"
	"github.com/danmuck/remotectl/internal/command"
	"github.com/danmuck/remotectl/internal/result"
	"github.com/danmuck/remotectl/internal/transport"
	"github.com/rs/zerolog/log"
)

// Policy decides what Exec returns for an Unrepresentable result.
type Policy int

const (
	// PolicyError returns *UnrepresentableReturnError.
	PolicyError Policy = iota
	// PolicyNull returns nil.
	PolicyNull
	// PolicyString returns the value's string form.
	PolicyString
)

var ErrUnrepresentableReturn = errors.New("client: unrepresentable return value")

type UnrepresentableReturnError struct {
	Repr string
}

func (e *UnrepresentableReturnError) Error() string {
	return fmt.Sprintf("the return value of the command was not serializable, its string representation was '%s'", e.Repr)
}

func (e *UnrepresentableReturnError) Is(target error) bool {
	return target == ErrUnrepresentableReturn
}

// RemoteError wraps a failure raised on the receiver.
type RemoteError struct {
	Cause error
}

func (e *RemoteError) Error() string {
	return "remote: " + e.Cause.Error()
}

func (e *RemoteError) Unwrap() error {
	return e.Cause
}

type Option func(*RemoteControl)

func WithPolicy(p Policy) Option {
	return func(rc *RemoteControl) { rc.policy = p }
}

func WithCatalog(c Catalog) Option {
	return func(rc *RemoteControl) { rc.catalog = c }
}

type RemoteControl struct {
	transport transport.Transport
	codec     *codec.Registry
	catalog   Catalog
	policy    Policy
	gen       *Generator
}

// New wires a client. reg must hold every type the caller binds as an
// argument or expects back, including the receiver's failure types.
func New(t transport.Transport, reg *codec.Registry, opts ...Option) *RemoteControl {
	rc := &RemoteControl{transport: t, codec: reg}
	for _, opt := range opts {
		opt(rc)
	}
	rc.gen = NewGenerator(reg, rc.catalog)
	return rc
}

func (rc *RemoteControl) Generator() *Generator {
	return rc.gen
}

// Exec runs fragments as one chain and returns the last fragment's value.
func (rc *RemoteControl) Exec(ctx context.Context, fragments ...*Fragment) (any, error) {
	return rc.ExecUsing(ctx, nil, fragments...)
}

// ExecUsing is Exec with extra fragments whose definitions every command in
// the chain ships with.
func (rc *RemoteControl) ExecUsing(ctx context.Context, used []*Fragment, fragments ...*Fragment) (any, error) {
	chain, err := rc.Chain(used, fragments...)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	res, err := rc.transport.Send(ctx, chain)
	if err != nil {
		return nil, fmt.Errorf("client: send chain %s: %w", chain.ID(), err)
	}
	log.Debug().
		Str("chain", chain.ID()).
		Str("result", res.Kind().String()).
		Dur("took", time.Since(started)).
		Msg("chain returned")
	return rc.Process(res)
}

func (rc *RemoteControl) Chain(used []*Fragment, fragments ...*Fragment) (command.Chain, error) {
	return rc.gen.Chain(used, fragments...)
}

// Process maps a Result onto the value or error Exec returns.
func (rc *RemoteControl) Process(res result.Result) (any, error) {
	switch res.Kind() {
	case result.KindNull:
		return nil, nil
	case result.KindValue:
		return res.Decode(rc.codec)
	case result.KindUnrepresentable:
		switch rc.policy {
		case PolicyNull:
			return nil, nil
		case PolicyString:
			return res.Repr(), nil
		default:
			return nil, &UnrepresentableReturnError{Repr: res.Repr()}
		}
	case result.KindFailure, result.KindUnrepresentableFailure:
		v, err := res.Decode(rc.codec)
		if err != nil {
			return nil, err
		}
		cause, ok := v.(error)
		if !ok {
			cause = fmt.Errorf("%v", v)
		}
		return nil, &RemoteError{Cause: cause}
	default:
		return nil, fmt.Errorf("%w: %s", result.ErrMalformedResult, res.Kind())
	}
}
