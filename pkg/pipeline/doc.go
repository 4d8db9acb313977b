// Package pipeline parses pipeline definition files.
//
// A pipeline file is a YAML document with a single top-level key naming the
// pipeline. Its value contains a core section with execution defaults and one
// section per extension. The declaration order of the extension sections is
// the order in which the orchestrator executes them.
package pipeline
