// Package config owns receiver configuration and context seeds.
//
// Ownership boundary:
// - TOML file + environment layering
// - validation and defaults
// - config templates used by configgen
//
// - YAML context seed files
package config
