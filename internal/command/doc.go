// Package command owns the command and chain model and its wire form.
//
// Ownership boundary:
// - dialects and the known-dialect set
// - definitions, invocations and dependency lists
// - chain encode/decode over protocol frames
//
// - chain type checks (one dialect per chain)
package command
