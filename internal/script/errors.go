package script

import "fmt"

// ErrorType is the codec name script failures travel under.
const ErrorType = "script.error"

// Error is a Lua failure raised while installing or running a definition.
type Error struct {
	Name    string `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("script %s: %s", e.Name, e.Message)
}
