// Package transport defines how a serialized chain reaches a receiver.
// Implementations live in the subpackages.
package transport

import (
	"context"

	"github.com/danmuck/remotectl/internal/command"
	"github.com/danmuck/remotectl/internal/result"
)

// Transport delivers one chain and returns the receiver's Result. An error is
// an I/O or protocol condition; failures of the chain itself are inside the
// Result. Calls are never retried.
type Transport interface {
	Send(ctx context.Context, chain command.Chain) (result.Result, error)
}

// Func adapts a function to Transport.
type Func func(ctx context.Context, chain command.Chain) (result.Result, error)

func (f Func) Send(ctx context.Context, chain command.Chain) (result.Result, error) {
	return f(ctx, chain)
}
