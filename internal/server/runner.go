package server

import (
	"context"
	"fmt"

	"github.com/danmuck/remotectl/internal/command"
	"github.com/danmuck/remotectl/internal/invoker"
	"github.com/danmuck/remotectl/internal/result"
	"github.com/danmuck/remotectl/internal/storage"
)

// Runner executes decoded chains of one dialect.
type Runner interface {
	Dialect() command.Dialect
	Run(ctx context.Context, chain command.Chain) (result.Result, error)
}

// ChainRunner builds a context for each chain and hands it to an invoker
// backed by the dialect's loader.
type ChainRunner struct {
	dialect  command.Dialect
	invoker  *invoker.Invoker
	contexts storage.Factory
}

func NewChainRunner(dialect command.Dialect, loader invoker.Loader, contexts storage.Factory, results *result.Factory) *ChainRunner {
	if contexts == nil {
		contexts = storage.Empty()
	}
	return &ChainRunner{
		dialect:  dialect,
		invoker:  invoker.New(loader, results),
		contexts: contexts,
	}
}

func (r *ChainRunner) Dialect() command.Dialect {
	return r.dialect
}

// Run fails only when no context could be built; everything that goes wrong
// inside the chain is part of the Result.
func (r *ChainRunner) Run(ctx context.Context, chain command.Chain) (result.Result, error) {
	store, err := r.contexts.Context(chain)
	if err != nil {
		return result.Result{}, fmt.Errorf("%w: chain %s: %w", ErrContextUnavailable, chain.ID(), err)
	}
	return r.invoker.Invoke(ctx, chain, store), nil
}
