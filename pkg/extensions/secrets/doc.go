// Package secrets is the builtin extension backing _secret references. It
// validates vault configuration; the orchestrator loads the vault contents
// into the pipeline state before any extension executes.
package secrets
