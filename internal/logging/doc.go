// Package logging configures zerolog output for every binary.
package logging
