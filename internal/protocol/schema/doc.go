// Package schema owns per-message TLV field layouts and their validation.
package schema
