package loader

import (
	"errors"
	"fmt"
	"sort"

	"github.com/danmuck/remotectl/internal/command"
	"github.com/danmuck/remotectl/internal/ops"
)

var (
	ErrDefinitionNotFound = errors.New("loader: definition not found on server")
	ErrNotInstalled       = errors.New("loader: operation not installed")
)

// DefinitionNotFoundError names a shipped definition the server does not
// allow.
type DefinitionNotFoundError struct {
	Name string `cbor:"1,keyasint"`
}

func (e *DefinitionNotFoundError) Error() string {
	return fmt.Sprintf("%v: %q", ErrDefinitionNotFound, e.Name)
}

func (e *DefinitionNotFoundError) Is(target error) bool {
	return target == ErrDefinitionNotFound
}

// NotInstalledError names an operation referenced without its definition
// having been shipped.
type NotInstalledError struct {
	Name string `cbor:"1,keyasint"`
}

func (e *NotInstalledError) Error() string {
	return fmt.Sprintf("%v: %q", ErrNotInstalled, e.Name)
}

func (e *NotInstalledError) Is(target error) bool {
	return target == ErrNotInstalled
}

// Namespace is the loading context of one command. Only operations whose
// definitions were installed into it resolve, even though the parent registry
// holds more.
type Namespace struct {
	parent    *ops.Registry
	installed map[string]ops.Operation
}

func NewNamespace(parent *ops.Registry) *Namespace {
	return &Namespace{parent: parent, installed: make(map[string]ops.Operation)}
}

// Install decodes one definition and binds its operation from the parent.
// Installing the same definition twice is a no-op.
func (n *Namespace) Install(raw []byte) (command.Definition, error) {
	def, err := command.UnmarshalDefinition(raw)
	if err != nil {
		return command.Definition{}, err
	}
	if def.Dialect != command.DialectOp {
		return command.Definition{}, fmt.Errorf("%w: definition %q is %q", command.ErrDialectMismatch, def.Name, def.Dialect)
	}
	if _, ok := n.installed[def.Name]; ok {
		return def, nil
	}
	op, ok := n.parent.Resolve(def.Name)
	if !ok {
		return command.Definition{}, &DefinitionNotFoundError{Name: def.Name}
	}
	n.installed[def.Name] = op
	return def, nil
}

// Resolve implements ops.Resolver over installed operations only.
func (n *Namespace) Resolve(id string) (ops.Operation, error) {
	op, ok := n.installed[id]
	if !ok {
		return nil, &NotInstalledError{Name: id}
	}
	return op, nil
}

func (n *Namespace) Installed() []string {
	out := make([]string, 0, len(n.installed))
	for name := range n.installed {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
