package command

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrEmptyChain        = errors.New("command: chain needs at least one command")
	ErrDialectMismatch   = errors.New("command: dialect mismatch")
	ErrEmptyPayload      = errors.New("command: empty payload")
	ErrEmptyDefinition   = errors.New("command: empty definition")
	ErrInvalidDialect    = errors.New("command: invalid dialect")
	ErrChainTypeNotFound = errors.New("command: chain type not found on server")
)

// Command is one executable step: an encoded Invocation plus the encoded
// Definitions it needs. Its byte slices are never shared with callers.
type Command struct {
	dialect      Dialect
	payload      []byte
	definition   []byte
	dependencies [][]byte
}

// New copies its inputs into an immutable Command.
func New(dialect Dialect, payload, definition []byte, dependencies [][]byte) (Command, error) {
	if !dialect.Valid() {
		return Command{}, fmt.Errorf("%w: %q", ErrInvalidDialect, dialect)
	}
	if len(payload) == 0 {
		return Command{}, ErrEmptyPayload
	}
	if len(definition) == 0 {
		return Command{}, ErrEmptyDefinition
	}
	deps := make([][]byte, 0, len(dependencies))
	for _, d := range dependencies {
		deps = append(deps, bytes.Clone(d))
	}
	return Command{
		dialect:      dialect,
		payload:      bytes.Clone(payload),
		definition:   bytes.Clone(definition),
		dependencies: deps,
	}, nil
}

func (c Command) Dialect() Dialect { return c.dialect }

func (c Command) Payload() []byte { return bytes.Clone(c.payload) }

func (c Command) Definition() []byte { return bytes.Clone(c.definition) }

func (c Command) Dependencies() [][]byte {
	out := make([][]byte, 0, len(c.dependencies))
	for _, d := range c.dependencies {
		out = append(out, bytes.Clone(d))
	}
	return out
}

// Chain is an ordered, non-empty run of commands of one dialect.
type Chain struct {
	id       string
	dialect  Dialect
	commands []Command
}

// NewChain assigns a fresh id and checks that every command matches dialect.
func NewChain(dialect Dialect, commands ...Command) (Chain, error) {
	return newChain(uuid.NewString(), dialect, commands)
}

func newChain(id string, dialect Dialect, commands []Command) (Chain, error) {
	if !dialect.Valid() {
		return Chain{}, fmt.Errorf("%w: %q", ErrInvalidDialect, dialect)
	}
	if len(commands) == 0 {
		return Chain{}, ErrEmptyChain
	}
	for i, c := range commands {
		if c.dialect != dialect {
			return Chain{}, fmt.Errorf("%w: command %d is %q, chain is %q", ErrDialectMismatch, i, c.dialect, dialect)
		}
	}
	return Chain{
		id:       id,
		dialect:  dialect,
		commands: append([]Command(nil), commands...),
	}, nil
}

func (c Chain) ID() string { return c.id }

func (c Chain) Dialect() Dialect { return c.dialect }

func (c Chain) Len() int { return len(c.commands) }

func (c Chain) Commands() []Command { return append([]Command(nil), c.commands...) }

// ChainTypeNotFoundError is returned when a received chain declares a dialect
// the receiving side does not know.
type ChainTypeNotFoundError struct {
	Dialect Dialect
}

func (e *ChainTypeNotFoundError) Error() string {
	return fmt.Sprintf("%v: %q", ErrChainTypeNotFound, e.Dialect)
}

func (e *ChainTypeNotFoundError) Is(target error) bool {
	return target == ErrChainTypeNotFound
}
