package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pipewright/pipewright/pkg/pipeline"
	"github.com/pipewright/pipewright/pkg/resources"
	"github.com/pipewright/pipewright/pkg/telemetry"
)

// Recorder persists run lifecycle facts. The orchestrator calls it on every
// extension state change and never blocks the run on recorder failures.
type Recorder interface {
	// RecordStateChange is called whenever an extension changes state.
	RecordStateChange(runID, extension string, state ExecutionState) error

	// RecordEvent is called for notable run events.
	RecordEvent(runID, extension, level, message string) error
}

// Orchestrator drives a pipeline run: it registers extensions, executes them
// sequentially in declaration order, and cleans them up in reverse order.
// A failing extension never stops the run; only critical errors and
// non-extension errors propagate.
type Orchestrator struct {
	runID       string
	parentStack string
	backend     resources.Backend
	definition  *pipeline.Definition

	state        *PipelineState
	logger       *telemetry.Logger
	metrics      *telemetry.Metrics
	tracer       *telemetry.Tracer
	errorHandler *ErrorHandler
	recorder     Recorder

	extensions map[string]Extension
	order      []string
}

// NewOrchestrator creates an orchestrator for one pipeline run. Each run
// gets a fresh UUID; the run root stack is named <parentStack>-<runID>.
func NewOrchestrator(parentStack string, backend resources.Backend, def *pipeline.Definition, tel *telemetry.Telemetry) (*Orchestrator, error) {
	if backend == nil {
		return nil, NewConfigurationError("orchestrator requires a resource backend", nil)
	}
	if def == nil {
		return nil, NewConfigurationError("orchestrator requires a pipeline definition", nil)
	}
	if tel == nil || tel.Logger == nil {
		return nil, NewConfigurationError("orchestrator requires telemetry", nil)
	}

	runID := uuid.NewString()
	logger := tel.Logger.WithRunID(runID).WithStack(backend.StackName())

	return &Orchestrator{
		runID:        runID,
		parentStack:  parentStack,
		backend:      backend,
		definition:   def,
		state:        NewPipelineState(logger, tel.Metrics),
		logger:       logger,
		metrics:      tel.Metrics,
		tracer:       tel.Tracer,
		errorHandler: NewErrorHandler(logger, tel.Metrics),
		extensions:   make(map[string]Extension),
	}, nil
}

// RunID returns the identifier of this run.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// State returns the shared pipeline state store.
func (o *Orchestrator) State() *PipelineState {
	return o.state
}

// SetRecorder attaches a run recorder. Must be called before Execute.
func (o *Orchestrator) SetRecorder(r Recorder) {
	o.recorder = r
}

// RegisterExtensions instantiates and initializes the given extensions in
// pipeline declaration order. An extension that fails to initialize is
// absent from the run; the failure is contained and later extensions still
// register.
func (o *Orchestrator) RegisterExtensions(factories map[string]Factory) {
	for _, name := range o.definition.ExtensionOrder {
		factory, ok := factories[name]
		if !ok {
			continue
		}
		o.registerExtension(name, factory)
	}
}

func (o *Orchestrator) registerExtension(name string, factory Factory) {
	ext := factory()
	if aware, ok := ext.(MetricsAware); ok {
		aware.SetMetrics(o.metrics)
	}
	if err := ext.Init(name, o.parentStack, o.backend, o.logger); err != nil {
		o.setState(name, StateFailed)
		loadErr := NewExtensionLoadError(
			fmt.Sprintf("Failed to initialize extension: %s", name),
			name,
			map[string]interface{}{"error": err.Error()},
		)
		_ = o.errorHandler.Handle(loadErr, "extension."+name+".init")
		return
	}
	o.extensions[name] = ext
	o.order = append(o.order, name)
	o.setState(name, StateRegistered)
	o.logger.Infof("Registered extension: %s", name)
}

// Execute runs every registered extension once, in registration order.
// Secrets are loaded into the state store before the first extension runs.
// Extension failures are recorded and contained; Execute returns an error
// only for critical or non-extension failures, or when ctx is done.
func (o *Orchestrator) Execute(ctx context.Context) error {
	o.logger.Info("Starting pipeline execution")
	o.metrics.RunStarted()
	runStart := time.Now()

	ctx, finishRun := o.startRunSpan(ctx)
	runStatus := "success"
	defer func() {
		o.metrics.RunCompleted(runStatus, time.Since(runStart))
		finishRun()
	}()

	if secretsConfig, ok := o.definition.Extensions["secrets"]; ok {
		o.state.LoadSecrets(secretsConfig)
	}

	for _, name := range o.order {
		if err := ctx.Err(); err != nil {
			runStatus = "canceled"
			return NewSystemError("pipeline execution canceled", "orchestrator", err)
		}

		rawConfig, configured := o.definition.Extensions[name]
		if !configured {
			o.logger.Warnf("Skipping unconfigured extension: %s", name)
			continue
		}

		o.setState(name, StateStarting)
		resolved := o.state.ResolveReferences(rawConfig)
		if len(resolved) == 0 {
			o.logger.Warnf("No configuration found for extension: %s", name)
			continue
		}

		extStart := time.Now()
		err := o.runExtension(ctx, name, o.extensions[name], resolved)
		if err != nil {
			o.setState(name, StateFailed)
			o.metrics.ExtensionExecuted(name, "failed", time.Since(extStart))
			if propagated := o.errorHandler.Handle(err, "extension."+name); propagated != nil {
				runStatus = "failed"
				return propagated
			}
			continue
		}
		o.setState(name, StateSuccess)
		o.metrics.ExtensionExecuted(name, "success", time.Since(extStart))
	}

	o.logger.Info("Pipeline execution completed")
	return nil
}

// runExtension executes a single extension inside a scoped boundary: the
// extension's own Cleanup always runs when the boundary exits, success or
// failure.
func (o *Orchestrator) runExtension(ctx context.Context, name string, ext Extension, config map[string]interface{}) error {
	finish := o.startExtensionSpan(ctx, name, "execute")

	var runErr error
	defer func() {
		finish(runErr)
		if cleanupErr := ext.Cleanup(); cleanupErr != nil {
			o.logger.WithError(cleanupErr).Errorf("Error during extension cleanup: %s", name)
		}
	}()

	if err := ext.ValidateConfig(config); err != nil {
		runErr = NewExtensionValidationError(
			fmt.Sprintf("Configuration validation failed for %s", name),
			name,
			map[string]interface{}{"error": err.Error()},
		)
		return runErr
	}

	if err := ext.Execute(config); err != nil {
		// A plain error from an extension is an extension failure; only a
		// typed error can escalate past the containment policy.
		var perr *PipelineError
		if errors.As(err, &perr) {
			runErr = err
		} else {
			runErr = &PipelineError{
				Severity: SeverityError,
				Category: CategoryExtension,
				Message:  fmt.Sprintf("Execution failed for %s", name),
				Context:  "extension." + name,
				Err:      err,
			}
		}
		return runErr
	}

	if provider, ok := ext.(OutputProvider); ok {
		if data := provider.OutputData(); len(data) > 0 {
			o.state.StoreExtensionData(name, data)
		}
	}
	return nil
}

// Cleanup tears extensions down in reverse registration order. Every
// extension's cleanup is attempted even when earlier ones fail; failures are
// collected into a single state error naming the failed extensions.
func (o *Orchestrator) Cleanup() error {
	o.logger.Info("Starting pipeline cleanup")

	var failed []string
	for i := len(o.order) - 1; i >= 0; i-- {
		name := o.order[i]
		finish := o.startExtensionSpan(context.Background(), name, "cleanup")
		err := o.extensions[name].Cleanup()
		finish(err)
		if err != nil {
			failed = append(failed, name)
			o.setState(name, StateCleanupFailed)
			o.metrics.CleanupFailed(name)
			cleanupErr := &PipelineError{
				Severity: SeverityError,
				Category: CategoryExtension,
				Message:  fmt.Sprintf("Cleanup failed for extension: %s", name),
				Context:  "extension." + name + ".cleanup",
				Err:      err,
			}
			_ = o.errorHandler.Handle(cleanupErr, cleanupErr.Context)
			continue
		}
		o.setState(name, StateCleaned)
	}

	if len(failed) > 0 {
		return NewStateError("Cleanup failed for some extensions", map[string]interface{}{
			"failed_extensions": failed,
			"error_count":       len(failed),
		})
	}
	o.logger.Info("Pipeline cleanup completed")
	return nil
}

func (o *Orchestrator) setState(name string, state ExecutionState) {
	o.state.SetExtensionState(name, state)
	if o.recorder != nil {
		if err := o.recorder.RecordStateChange(o.runID, name, state); err != nil {
			o.logger.WithError(err).Warnf("Failed to record state change for %s", name)
		}
	}
}

// startRunSpan starts the run span when tracing is configured. The returned
// function ends the span.
func (o *Orchestrator) startRunSpan(ctx context.Context) (context.Context, func()) {
	if o.tracer == nil {
		return ctx, func() {}
	}
	ctx, span := o.tracer.StartRunSpan(ctx, o.runID, o.backend.StackName())
	return ctx, func() { span.End() }
}

// startExtensionSpan starts a per-extension span for one phase. The returned
// function records the outcome and ends the span.
func (o *Orchestrator) startExtensionSpan(ctx context.Context, name, phase string) func(error) {
	if o.tracer == nil {
		return func(error) {}
	}
	_, span := o.tracer.StartExtensionSpan(ctx, name, phase)
	return func(err error) {
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.RecordSuccess(span)
		}
		span.End()
	}
}
