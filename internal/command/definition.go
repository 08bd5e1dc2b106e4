package command

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/danmuck/remotectl/internal/codec"
)

var (
	ErrInvalidDefinition = errors.New("command: invalid definition")
	ErrInvalidInvocation = errors.New("command: invalid invocation")
)

// Definition describes an artifact a payload can be an instance of. For the op
// dialect it names a registered operation; for scripts it also carries the
// source.
type Definition struct {
	Name    string  `cbor:"1,keyasint"`
	Dialect Dialect `cbor:"2,keyasint"`
	Source  string  `cbor:"3,keyasint,omitempty"`
}

func (d Definition) Validate() error {
	if !d.Dialect.Valid() {
		return fmt.Errorf("%w: dialect %q", ErrInvalidDefinition, d.Dialect)
	}
	if d.Name == "" || len(d.Name) > 256 {
		return fmt.Errorf("%w: name length %d", ErrInvalidDefinition, len(d.Name))
	}
	if strings.IndexFunc(d.Name, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: name %q contains whitespace", ErrInvalidDefinition, d.Name)
	}
	return nil
}

func MarshalDefinition(d Definition) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return codec.EncodeRaw(d)
}

func UnmarshalDefinition(data []byte) (Definition, error) {
	var d Definition
	if err := codec.DecodeRaw(data, &d); err != nil {
		return Definition{}, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	if err := d.Validate(); err != nil {
		return Definition{}, err
	}
	return d, nil
}

// Invocation is the decoded payload: which installed artifact to call and the
// arguments bound to it on the client. Each argument is a codec envelope.
type Invocation struct {
	Entry string   `cbor:"1,keyasint"`
	Args  [][]byte `cbor:"2,keyasint,omitempty"`
}

func MarshalInvocation(inv Invocation) ([]byte, error) {
	if inv.Entry == "" {
		return nil, fmt.Errorf("%w: empty entry", ErrInvalidInvocation)
	}
	return codec.EncodeRaw(inv)
}

func UnmarshalInvocation(data []byte) (Invocation, error) {
	var inv Invocation
	if err := codec.DecodeRaw(data, &inv); err != nil {
		return Invocation{}, fmt.Errorf("%w: %v", ErrInvalidInvocation, err)
	}
	if inv.Entry == "" {
		return Invocation{}, fmt.Errorf("%w: empty entry", ErrInvalidInvocation)
	}
	return inv, nil
}
