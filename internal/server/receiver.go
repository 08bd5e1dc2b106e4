// Package server receives serialized command chains, dispatches them to the
// runner registered for their dialect and writes back a Result.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/danmuck/remotectl/internal/command"
	"github.com/danmuck/remotectl/internal/observability"
	"github.com/danmuck/remotectl/internal/protocol/frame"
	"github.com/danmuck/remotectl/internal/result"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnsupportedCommandType = errors.New("server: unsupported command type")
	ErrRunnerExists           = errors.New("server: runner already registered")
	ErrRunnerNil              = errors.New("server: nil runner")
	ErrContextUnavailable     = errors.New("server: execution context unavailable")
	ErrWriteResult            = errors.New("server: write result")
)

// UnsupportedCommandTypeError is returned for a dialect the receiver decodes
// but has no runner for.
type UnsupportedCommandTypeError struct {
	Dialect command.Dialect
}

func (e *UnsupportedCommandTypeError) Error() string {
	return fmt.Sprintf("server: cannot handle commands of type %q", e.Dialect)
}

func (e *UnsupportedCommandTypeError) Is(target error) bool {
	return target == ErrUnsupportedCommandType
}

// Reject reasons recorded on the receiver_rejections_total metric.
const (
	RejectChainType   = "chain_type_not_found"
	RejectUnsupported = "unsupported_command_type"
	RejectMalformed   = "malformed"
	RejectContext     = "context"
)

type Option func(*Receiver)

// WithLimits bounds the frames the receiver reads and writes.
func WithLimits(limits frame.Limits) Option {
	return func(r *Receiver) { r.limits = limits }
}

// WithKnownDialects sets the dialects the receiver decodes besides those it
// has runners for. Chains in any other dialect fail before their commands are
// read.
func WithKnownDialects(ds ...command.Dialect) Option {
	return func(r *Receiver) { r.known = command.KnownDialects(ds...) }
}

type Receiver struct {
	mu      sync.RWMutex
	runners map[command.Dialect]Runner
	known   command.DialectSet
	limits  frame.Limits
}

func NewReceiver(opts ...Option) *Receiver {
	r := &Receiver{
		runners: make(map[command.Dialect]Runner),
		known:   command.KnownDialects(command.DialectOp, command.DialectLua),
		limits:  frame.DefaultLimits(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a runner for its dialect and makes the dialect known. The
// first registration for a dialect wins.
func (r *Receiver) Register(runner Runner) error {
	if runner == nil {
		return ErrRunnerNil
	}
	d := runner.Dialect()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runners[d]; exists {
		return fmt.Errorf("%w: %q", ErrRunnerExists, d)
	}
	r.runners[d] = runner
	if !r.known.Contains(d) {
		// Execute reads known without copying, so replace it.
		known := make(command.DialectSet, len(r.known)+1)
		for k := range r.known {
			known[k] = struct{}{}
		}
		known[d] = struct{}{}
		r.known = known
	}
	log.Debug().Str("dialect", d.String()).Msg("runner registered")
	return nil
}

func (r *Receiver) Dialects() []command.Dialect {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := make(command.DialectSet, len(r.runners))
	for d := range r.runners {
		set[d] = struct{}{}
	}
	return set.Sorted()
}

func (r *Receiver) Limits() frame.Limits {
	return r.limits
}

// Execute reads one chain from in, runs it and writes the Result to out.
// Protocol conditions are returned and nothing is written.
func (r *Receiver) Execute(ctx context.Context, in io.Reader, out io.Writer) error {
	started := time.Now()
	r.mu.RLock()
	known := r.known
	r.mu.RUnlock()
	chain, err := command.ReadChain(in, r.limits, known)
	if err != nil {
		if errors.Is(err, command.ErrChainTypeNotFound) {
			return r.reject(RejectChainType, err)
		}
		return r.reject(RejectMalformed, err)
	}

	r.mu.RLock()
	runner, ok := r.runners[chain.Dialect()]
	r.mu.RUnlock()
	if !ok {
		return r.reject(RejectUnsupported, &UnsupportedCommandTypeError{Dialect: chain.Dialect()})
	}

	res, err := runner.Run(ctx, chain)
	if err != nil {
		return r.reject(RejectContext, err)
	}
	if err := result.Write(out, res, r.limits); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteResult, err)
	}
	log.Info().
		Str("chain", chain.ID()).
		Str("dialect", chain.Dialect().String()).
		Int("commands", chain.Len()).
		Str("result", res.Kind().String()).
		Dur("took", time.Since(started)).
		Msg("chain executed")
	return nil
}

// ExecuteBytes is Execute over in-memory frames.
func (r *Receiver) ExecuteBytes(ctx context.Context, request []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := r.Execute(ctx, bytes.NewReader(request), &out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func (r *Receiver) reject(reason string, err error) error {
	observability.RecordReject(reason)
	log.Warn().Err(err).Str("reason", reason).Msg("chain rejected")
	return err
}
