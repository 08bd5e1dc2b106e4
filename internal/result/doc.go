// Package result owns the outcome of one chain.
//
// Ownership boundary:
// - the five result shapes
// - value and failure classification (Factory)
// - result frames on the wire
//
// A Result never carries a Go error across the wire; failures travel as
// codec-encoded values or opaque stand-ins.
package result
