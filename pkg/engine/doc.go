// Package engine is the pipeline execution core.
//
// The Orchestrator registers extensions in declaration order, executes them
// sequentially against a shared PipelineState, and tears them down in
// reverse order. PipelineState stores per-extension outputs and secrets and
// resolves secret and group references inside extension configuration before
// execution. Errors follow a severity and category model: critical errors
// always stop the run, extension errors are contained, and everything else
// propagates.
package engine
