// Package storage owns the execution context a chain runs against.
//
// Ownership boundary:
// - the Context capability and its map-backed Store
// - per-chain context factories (empty, seeded, generated)
package storage
