// Package observability owns process logging setup, metrics and tracing.
//
// Ownership boundary:
// - logger initialization
// - prometheus collectors and gin middleware
// - request ids
//
// - OTLP trace export
package observability
