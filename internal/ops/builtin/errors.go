package builtin

import (
	"fmt"

	"github.com/danmuck/remotectl/internal/codec"
	"github.com/danmuck/remotectl/internal/loader"
	"github.com/danmuck/remotectl/internal/script"
	"github.com/danmuck/remotectl/internal/storage"
)

// ArithmeticError is returned by the math operations.
type ArithmeticError struct {
	Op      string `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
}

func (e *ArithmeticError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// ApplicationError is a failure raised on purpose by an operation.
type ApplicationError struct {
	Code    string `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
}

func (e *ApplicationError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

func badArgument(op string, format string, args ...any) error {
	return &ApplicationError{Code: "bad_argument", Message: op + ": " + fmt.Sprintf(format, args...)}
}

// RegisterTypes makes the builtin failure types encodable. Client and server
// must both call it.
func RegisterTypes(reg *codec.Registry) error {
	types := []struct {
		name   string
		sample any
	}{
		{"math.arithmetic_error", &ArithmeticError{}},
		{"core.application_error", &ApplicationError{}},
		{"storage.missing_key", &storage.MissingKeyError{}},
		{"loader.definition_not_found", &loader.DefinitionNotFoundError{}},
		{"loader.not_installed", &loader.NotInstalledError{}},
		{script.ErrorType, &script.Error{}},
	}
	for _, t := range types {
		if err := reg.Register(t.name, t.sample); err != nil {
			return err
		}
	}
	return nil
}
