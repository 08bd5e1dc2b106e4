package client

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/danmuck/remotectl/internal/codec"
	"github.com/danmuck/remotectl/internal/command"
)

var ErrUnserializableCommand = errors.New("client: unserializable command")

// UnserializableCommandError names the fragment whose arguments could not be
// encoded.
type UnserializableCommandError struct {
	Fragment string
	Err      error
}

func (e *UnserializableCommandError) Error() string {
	return fmt.Sprintf("client: command %q cannot be serialized: %v", e.Fragment, e.Err)
}

func (e *UnserializableCommandError) Is(target error) bool {
	return target == ErrUnserializableCommand
}

func (e *UnserializableCommandError) Unwrap() error {
	return e.Err
}

// Generator turns fragments into Commands. It takes no locks; sharing one
// generator and its fragments across goroutines is up to the caller.
type Generator struct {
	codec   *codec.Registry
	catalog Catalog
}

// NewGenerator uses catalog to discover nested artifacts. A nil catalog
// discovers nothing.
func NewGenerator(reg *codec.Registry, catalog Catalog) *Generator {
	return &Generator{codec: reg, catalog: catalog}
}

// Generate encodes f and attaches the definitions it and every used fragment
// need on the receiver.
func (g *Generator) Generate(f *Fragment, used ...*Fragment) (command.Command, error) {
	if f == nil {
		return command.Command{}, errors.New("client: nil fragment")
	}
	root, args := f.clone().flatten()
	root.delegate, root.owner = nil, nil

	raw := make([][]byte, 0, len(args))
	for _, a := range args {
		b, err := g.codec.Marshal(a)
		if err != nil {
			return command.Command{}, &UnserializableCommandError{Fragment: root.name, Err: err}
		}
		raw = append(raw, b)
	}
	payload, err := command.MarshalInvocation(command.Invocation{Entry: root.name, Args: raw})
	if err != nil {
		return command.Command{}, &UnserializableCommandError{Fragment: root.name, Err: err}
	}
	rootDef := root.definition()
	definition, err := command.MarshalDefinition(rootDef)
	if err != nil {
		return command.Command{}, &UnserializableCommandError{Fragment: root.name, Err: err}
	}

	deps := dependencySet{root: definition}
	if err := g.discover(&deps, rootDef); err != nil {
		return command.Command{}, err
	}
	for _, u := range used {
		if u == nil {
			continue
		}
		ur := u.root()
		if ur.dialect != root.dialect {
			return command.Command{}, fmt.Errorf("%w: used fragment %q is %q, command %q is %q",
				command.ErrDialectMismatch, ur.name, ur.dialect, root.name, root.dialect)
		}
		if err := deps.add(ur.definition()); err != nil {
			return command.Command{}, err
		}
		if err := g.discover(&deps, ur.definition()); err != nil {
			return command.Command{}, err
		}
	}
	return command.New(root.dialect, payload, definition, deps.list)
}

// Chain generates one command per fragment. All fragments must share a
// dialect; used fragments are attached to every command.
func (g *Generator) Chain(used []*Fragment, fragments ...*Fragment) (command.Chain, error) {
	if len(fragments) == 0 {
		return command.Chain{}, command.ErrEmptyChain
	}
	cmds := make([]command.Command, 0, len(fragments))
	for _, f := range fragments {
		c, err := g.Generate(f, used...)
		if err != nil {
			return command.Chain{}, err
		}
		cmds = append(cmds, c)
	}
	return command.NewChain(fragments[0].Dialect(), cmds...)
}

func (g *Generator) discover(deps *dependencySet, def command.Definition) error {
	if g.catalog == nil {
		return nil
	}
	nested, err := g.catalog.Nested(def)
	if err != nil {
		return err
	}
	for _, n := range nested {
		if err := deps.add(n); err != nil {
			return err
		}
	}
	return nil
}

// dependencySet keeps encoded definitions in discovery order without
// duplicates or the root.
type dependencySet struct {
	root []byte
	list [][]byte
}

func (s *dependencySet) add(def command.Definition) error {
	b, err := command.MarshalDefinition(def)
	if err != nil {
		return &UnserializableCommandError{Fragment: def.Name, Err: err}
	}
	if bytes.Equal(b, s.root) {
		return nil
	}
	for _, existing := range s.list {
		if bytes.Equal(b, existing) {
			return nil
		}
	}
	s.list = append(s.list, b)
	return nil
}
