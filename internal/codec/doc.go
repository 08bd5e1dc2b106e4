// Package codec owns the value encoding shared by client and receiver.
//
// Ownership boundary:
// - type registry (name <-> Go type)
// - CBOR value envelopes
// - opaque stand-ins for failures the peer cannot decode
//
// Both ends must register the same names; an unknown name on decode is a
// TypeNotFoundError, never a guess.
package codec
