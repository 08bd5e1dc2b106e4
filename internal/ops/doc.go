// Package ops owns server-side operations and their registry.
//
// Ownership boundary:
// - operation metadata and calling shape
// - id validation and registration
// - deterministic listing
//
// Builtin operations live in ops/builtin.
package ops
