package storage

import (
	"errors"
	"fmt"
	"maps"

	"github.com/danmuck/remotectl/internal/command"
)

var ErrInvalidContext = errors.New("storage: invalid context")

// Factory builds the execution context for one chain.
type Factory interface {
	Context(chain command.Chain) (*Store, error)
}

// Empty hands every chain a fresh empty store.
func Empty() Factory {
	return emptyFactory{}
}

type emptyFactory struct{}

func (emptyFactory) Context(command.Chain) (*Store, error) {
	return New(), nil
}

// Seeded copies template at construction and copies that copy again for
// every chain, so neither the caller's map nor the template ever changes.
// The copy is shallow: nested maps and slices are shared.
func Seeded(template map[string]any) Factory {
	return seededFactory{template: maps.Clone(template)}
}

type seededFactory struct {
	template map[string]any
}

func (f seededFactory) Context(command.Chain) (*Store, error) {
	return FromMap(maps.Clone(f.template)), nil
}

// Generator produces the context for a chain. Nil means empty. It is called
// without synchronization, so it must tolerate concurrent calls.
type Generator func(chain command.Chain) (any, error)

// Generated asks gen for each chain's context. Accepted results are nil,
// map[string]any and *Store.
func Generated(gen Generator) Factory {
	return generatedFactory{gen: gen}
}

type generatedFactory struct {
	gen Generator
}

func (f generatedFactory) Context(chain command.Chain) (*Store, error) {
	v, err := f.gen(chain)
	if err != nil {
		return nil, fmt.Errorf("storage: context generator: %w", err)
	}
	switch x := v.(type) {
	case nil:
		return New(), nil
	case map[string]any:
		return FromMap(x), nil
	case *Store:
		if x == nil {
			return New(), nil
		}
		return x, nil
	default:
		return nil, fmt.Errorf("%w: the generator did not return a map (got %T)", ErrInvalidContext, v)
	}
}
