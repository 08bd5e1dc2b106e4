package loader

import (
	"fmt"

	"github.com/danmuck/remotectl/internal/codec"
	"github.com/danmuck/remotectl/internal/command"
	"github.com/danmuck/remotectl/internal/invoker"
	"github.com/danmuck/remotectl/internal/ops"
	"github.com/danmuck/remotectl/internal/storage"
	"github.com/rs/zerolog/log"
)

// Loader reconstructs op-dialect commands against the server's operation
// registry.
type Loader struct {
	ops   *ops.Registry
	codec *codec.Registry
}

func New(opsReg *ops.Registry, codecReg *codec.Registry) *Loader {
	return &Loader{ops: opsReg, codec: codecReg}
}

// Load installs the definition, then every dependency, into a fresh namespace
// and resolves the payload inside it.
func (l *Loader) Load(cmd command.Command) (invoker.Step, error) {
	ns := NewNamespace(l.ops)
	if _, err := ns.Install(cmd.Definition()); err != nil {
		return nil, err
	}
	for i, dep := range cmd.Dependencies() {
		if _, err := ns.Install(dep); err != nil {
			return nil, fmt.Errorf("dependency %d: %w", i, err)
		}
	}

	inv, err := command.UnmarshalInvocation(cmd.Payload())
	if err != nil {
		return nil, err
	}
	op, err := ns.Resolve(inv.Entry)
	if err != nil {
		return nil, err
	}
	args := make([]any, 0, len(inv.Args))
	for i, raw := range inv.Args {
		v, err := l.codec.Unmarshal(raw)
		if err != nil {
			return nil, fmt.Errorf("argument %d of %s: %w", i, inv.Entry, err)
		}
		args = append(args, v)
	}
	log.Debug().Str("entry", inv.Entry).Strs("installed", ns.Installed()).Msg("operation loaded")
	return &step{op: op, args: args, scope: ns}, nil
}

type step struct {
	op    ops.Operation
	args  []any
	scope *Namespace
}

// Invoke drops the carried value for operations that take no parameters.
func (s *step) Invoke(ctx storage.Context, input any) (any, error) {
	call := ops.Call{Context: ctx, Args: s.args, Scope: s.scope}
	if s.op.Metadata().Params > 0 {
		call.Input = input
	}
	return s.op.Invoke(call)
}
