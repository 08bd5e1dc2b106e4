// Package testlog configures quiet zerolog output for tests and marks where
// each test starts and ends.
package testlog
