package invoker

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/remotectl/internal/codec"
	"github.com/danmuck/remotectl/internal/command"
	"github.com/danmuck/remotectl/internal/observability"
	"github.com/danmuck/remotectl/internal/result"
	"github.com/danmuck/remotectl/internal/storage"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Step is one command reconstructed inside its own loading namespace.
type Step interface {
	Invoke(ctx storage.Context, input any) (any, error)
}

// Loader reconstructs a command inside a fresh namespace. Every call must
// build a new namespace; nothing loaded for one command may leak to another.
type Loader interface {
	Load(cmd command.Command) (Step, error)
}

// InvocationError records which step of a chain failed. The invoker strips
// one layer of it before building the failure Result.
type InvocationError struct {
	Step int
	Err  error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoker: step %d: %v", e.Step, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// PanicType marks the OpaqueError produced for a recovered panic.
const PanicType = "panic"

// Invoker runs the commands of a chain in order, threading each return value
// into the next command and stopping at the first failure.
type Invoker struct {
	loader  Loader
	results *result.Factory
}

func New(loader Loader, results *result.Factory) *Invoker {
	return &Invoker{loader: loader, results: results}
}

// Invoke runs chain against store and always produces a Result. Failures of
// individual commands are part of the Result, never returned.
func (inv *Invoker) Invoke(ctx context.Context, chain command.Chain, store storage.Context) result.Result {
	dialect := chain.Dialect().String()
	ctx, span := observability.Tracer().Start(ctx, "chain.invoke", trace.WithAttributes(
		attribute.String("chain.id", chain.ID()),
		attribute.String("chain.dialect", dialect),
		attribute.Int("chain.commands", chain.Len()),
	))
	defer span.End()
	start := time.Now()

	var carried any
	for i, cmd := range chain.Commands() {
		out, err := inv.step(ctx, dialect, i, cmd, store, carried)
		if err != nil {
			cause := unwrapInvocation(err)
			log.Debug().
				Str("chain_id", chain.ID()).
				Int("step", i).
				Err(cause).
				Msg("chain stopped at failing command")
			span.RecordError(cause)
			span.SetStatus(codes.Error, "command failed")
			observability.RecordChain(dialect, observability.OutcomeFailure, i+1, time.Since(start))
			return inv.results.ForFailure(cause)
		}
		carried = out
	}

	res := inv.results.ForValue(carried)
	observability.RecordChain(dialect, outcome(res.Kind()), chain.Len(), time.Since(start))
	log.Debug().
		Str("chain_id", chain.ID()).
		Int("commands", chain.Len()).
		Str("result", res.Kind().String()).
		Msg("chain completed")
	return res
}

func (inv *Invoker) step(
	ctx context.Context,
	dialect string,
	index int,
	cmd command.Command,
	store storage.Context,
	carried any,
) (out any, err error) {
	_, span := observability.Tracer().Start(ctx, "chain.step", trace.WithAttributes(
		attribute.Int("step.index", index),
	))
	defer span.End()
	start := time.Now()
	defer func() {
		observability.RecordStep(dialect, time.Since(start), err == nil)
	}()
	defer func() {
		if p := recover(); p != nil {
			out = nil
			err = &InvocationError{Step: index, Err: &codec.OpaqueError{Type: PanicType, Message: fmt.Sprint(p)}}
		}
	}()

	s, err := inv.loader.Load(cmd)
	if err != nil {
		return nil, &InvocationError{Step: index, Err: err}
	}
	out, err = s.Invoke(store, carried)
	if err != nil {
		return nil, &InvocationError{Step: index, Err: err}
	}
	return out, nil
}

// unwrapInvocation removes exactly one InvocationError layer.
func unwrapInvocation(err error) error {
	if ie, ok := err.(*InvocationError); ok && ie.Err != nil {
		return ie.Err
	}
	return err
}

func outcome(k result.Kind) string {
	switch k {
	case result.KindNull:
		return observability.OutcomeNull
	case result.KindUnrepresentable:
		return observability.OutcomeUnrepresented
	default:
		return observability.OutcomeValue
	}
}
