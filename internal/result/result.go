package result

import (
	"bytes"
	"fmt"
)

// Kind tags the shape of a Result.
type Kind uint8

const (
	KindNull Kind = iota + 1
	KindValue
	KindUnrepresentable
	KindFailure
	KindUnrepresentableFailure
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindValue:
		return "value"
	case KindUnrepresentable:
		return "unrepresentable"
	case KindFailure:
		return "failure"
	case KindUnrepresentableFailure:
		return "unrepresentable_failure"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) valid() bool {
	return k >= KindNull && k <= KindUnrepresentableFailure
}

// Result is the terminal outcome of one chain. Exactly one shape is populated
// and the tag never changes after construction.
type Result struct {
	kind    Kind
	data    []byte
	repr    string
	wrapper []byte
}

func Null() Result {
	return Result{kind: KindNull}
}

// Value carries an encoded value.
func Value(data []byte) Result {
	return Result{kind: KindValue, data: bytes.Clone(data)}
}

// Unrepresentable carries only the textual form of a value that could not be
// encoded.
func Unrepresentable(repr string) Result {
	return Result{kind: KindUnrepresentable, repr: repr}
}

// Failure carries an encoded error.
func Failure(data []byte) Result {
	return Result{kind: KindFailure, data: bytes.Clone(data)}
}

// UnrepresentableFailure carries the description of an error that could not
// be encoded plus an encoded stand-in for it.
func UnrepresentableFailure(repr string, wrapper []byte) Result {
	return Result{kind: KindUnrepresentableFailure, repr: repr, wrapper: bytes.Clone(wrapper)}
}

func (r Result) Kind() Kind { return r.kind }

// Bytes is the encoded value for Value and the encoded error for Failure.
func (r Result) Bytes() []byte { return bytes.Clone(r.data) }

// Repr is the textual fallback of the unrepresentable shapes.
func (r Result) Repr() string { return r.repr }

// Wrapper is the encoded stand-in error of UnrepresentableFailure.
func (r Result) Wrapper() []byte { return bytes.Clone(r.wrapper) }

func (r Result) IsFailure() bool {
	return r.kind == KindFailure || r.kind == KindUnrepresentableFailure
}

// Equal compares tag and carried payloads.
func (r Result) Equal(other Result) bool {
	return r.kind == other.kind &&
		bytes.Equal(r.data, other.data) &&
		r.repr == other.repr &&
		bytes.Equal(r.wrapper, other.wrapper)
}

func (r Result) String() string {
	switch r.kind {
	case KindValue, KindFailure:
		return fmt.Sprintf("%s(%d bytes)", r.kind, len(r.data))
	case KindUnrepresentable:
		return fmt.Sprintf("%s(%q)", r.kind, r.repr)
	case KindUnrepresentableFailure:
		return fmt.Sprintf("%s(%q, %d bytes)", r.kind, r.repr, len(r.wrapper))
	default:
		return r.kind.String()
	}
}
