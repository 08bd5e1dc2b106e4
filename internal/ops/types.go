package ops

import "github.com/danmuck/remotectl/internal/storage"

// Metadata is the identity and calling shape of an operation.
type Metadata struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	// Params is 1 when the operation takes the carried value and 0 when it is
	// called without it.
	Params int `json:"params"`
}

// Resolver finds operations installed in the current command's namespace.
type Resolver interface {
	Resolve(id string) (Operation, error)
}

// Call is everything one invocation sees.
type Call struct {
	Context storage.Context
	// Input is the carried value, always nil when Params is 0.
	Input any
	// Args are the arguments bound on the client.
	Args  []any
	Scope Resolver
}

// Arg returns the i-th bound argument or nil.
func (c Call) Arg(i int) any {
	if i < 0 || i >= len(c.Args) {
		return nil
	}
	return c.Args[i]
}

// Operation is one server-side unit a command may reference.
type Operation interface {
	Metadata() Metadata
	Invoke(call Call) (any, error)
}

// Func adapts a plain function into an Operation.
type Func struct {
	Meta Metadata
	Fn   func(Call) (any, error)
}

func (f Func) Metadata() Metadata { return f.Meta }

func (f Func) Invoke(call Call) (any, error) { return f.Fn(call) }
