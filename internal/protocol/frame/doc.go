// Package frame owns the fixed frame header and its limits.
//
// Ownership boundary:
// - header encode/decode
// - magic, version and flag checks
// - payload size limits
package frame
