// Package invoker owns running a decoded chain step by step.
//
// Ownership boundary:
// - load then invoke, in chain order
// - carrying each step's value into the next
// - turning the last value or first failure into a Result
package invoker
