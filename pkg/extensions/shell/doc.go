// Package shell is the builtin extension for running shell commands and
// scripts. Each named command set runs its commands through an interpreter,
// records the execution as a resource, and exports the captured output.
package shell
