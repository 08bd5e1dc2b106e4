package codec

// OpaqueErrorType is the wire name of OpaqueError.
const OpaqueErrorType = "remote.opaque_error"

// OpaqueError stands in for a failure whose own value could not be encoded.
// Only the description and the Go type name survive.
type OpaqueError struct {
	Type    string `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
}

func (e *OpaqueError) Error() string {
	if e.Type == "" {
		return e.Message
	}
	return e.Type + ": " + e.Message
}
