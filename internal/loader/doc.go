// Package loader owns op-dialect loading.
//
// Ownership boundary:
// - per-command namespaces over the server's operation registry
// - definition-first install, then dependencies
package loader
