package codec

import (
	"errors"
	"fmt"
)

var (
	ErrTypeNotFound    = errors.New("codec: type not found")
	ErrNotSerializable = errors.New("codec: value not serializable")
	ErrMalformed       = errors.New("codec: malformed value")
)

// TypeNotFoundError names a wire type the local registry does not know. It
// signals mismatched registrations between the two ends, not corrupt data.
type TypeNotFoundError struct {
	Name string
}

func (e *TypeNotFoundError) Error() string {
	return fmt.Sprintf("codec: type not found: %q", e.Name)
}

func (e *TypeNotFoundError) Is(target error) bool {
	return target == ErrTypeNotFound
}

// NotSerializableError reports why a value could not be encoded.
type NotSerializableError struct {
	Type string
	Err  error
}

func (e *NotSerializableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("codec: value of type %s not serializable", e.Type)
	}
	return fmt.Sprintf("codec: value of type %s not serializable: %v", e.Type, e.Err)
}

func (e *NotSerializableError) Is(target error) bool {
	return target == ErrNotSerializable
}

func (e *NotSerializableError) Unwrap() error {
	return e.Err
}
