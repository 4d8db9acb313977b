package engine

import (
	"fmt"
	"strings"

	"github.com/pipewright/pipewright/pkg/resources"
	"github.com/pipewright/pipewright/pkg/telemetry"
)

// Extension is the capability contract every extension implementation must
// satisfy. The type system enforces the full set at compile time for
// statically linked extensions; plugin-loaded extensions are checked at load.
type Extension interface {
	// Init binds the extension to its name, the parent run identifier and
	// the shared resource backend. Called exactly once, at registration.
	Init(name, parentStack string, backend resources.Backend, logger *telemetry.Logger) error

	// ValidateConfig validates the extension's resolved configuration.
	ValidateConfig(config map[string]interface{}) error

	// Execute runs the extension against its resolved configuration.
	Execute(config map[string]interface{}) error

	// Cleanup releases the extension's resources.
	Cleanup() error
}

// Factory constructs a fresh extension instance. Exactly one live instance
// exists per extension name per orchestrator run.
type Factory func() Extension

// OutputProvider is optionally implemented by extensions that expose output
// data to the state store after execution.
type OutputProvider interface {
	OutputData() map[string]interface{}
}

// MetricsAware is optionally implemented by extensions that record resource
// metrics. The orchestrator injects the shared collector at registration.
type MetricsAware interface {
	SetMetrics(metrics *telemetry.Metrics)
}

// Base carries the common extension plumbing: the namespace, the resource
// backend handle, scratch state and accumulated outputs. Concrete extensions
// embed Base and implement ValidateConfig and Execute.
type Base struct {
	// State is the extension's local scratch state, cleared at cleanup.
	State map[string]interface{}

	// Logger carries the extension namespace as a structured field.
	Logger *telemetry.Logger

	name        string
	parentStack string
	stackName   string
	backend     resources.Backend
	root        resources.Resource
	outputs     map[string][]interface{}
	metrics     *telemetry.Metrics
}

// Init derives the extension namespace <parentStack>.<name> and creates the
// protected extension root resource parented at the run root.
func (b *Base) Init(name, parentStack string, backend resources.Backend, logger *telemetry.Logger) error {
	b.name = name
	b.parentStack = parentStack
	b.backend = backend
	b.stackName = parentStack + "." + name
	b.State = make(map[string]interface{})
	b.outputs = make(map[string][]interface{})
	b.Logger = logger.WithExtension(b.stackName)

	extensionType := resources.ExtensionTypePrefix + name
	root, err := backend.CreateResource(extensionType, b.stackName, map[string]interface{}{
		"name":         name,
		"parent_stack": parentStack,
		"type":         extensionType,
	}, resources.Options{Protect: true})
	if err != nil {
		return fmt.Errorf("failed to create extension root resource: %w", err)
	}
	b.root = root

	b.Logger.Infof("Initialized extension %s in stack %s", name, parentStack)
	return nil
}

// SetMetrics injects the shared metrics collector.
func (b *Base) SetMetrics(metrics *telemetry.Metrics) {
	b.metrics = metrics
}

// Name returns the extension name.
func (b *Base) Name() string { return b.name }

// Namespace returns the dot-qualified namespace <parentStack>.<name>.
func (b *Base) Namespace() string { return b.stackName }

// Root returns the extension's root resource.
func (b *Base) Root() resources.Resource { return b.root }

// Backend returns the shared resource backend.
func (b *Base) Backend() resources.Backend { return b.backend }

// CreateResource creates a resource in the extension's namespace. The name is
// qualified as <namespace>.<localName>; the extension root is the default
// parent, so every parent chain terminates at the run root.
func (b *Base) CreateResource(resourceType, localName string, props map[string]interface{}, parent resources.Resource, dependsOn []resources.Resource) (resources.Resource, error) {
	if b.backend == nil {
		return nil, fmt.Errorf("extension %s not initialized", b.name)
	}

	resourceName := b.stackName + "." + localName

	fullProps := map[string]interface{}{
		"type":      resourceType,
		"stack":     b.stackName,
		"extension": b.name,
	}
	if parent != nil {
		fullProps["parent_resource"] = parent.Name()
	}
	for k, v := range props {
		fullProps[k] = v
	}

	effectiveParent := parent
	if effectiveParent == nil {
		effectiveParent = b.root
	}

	resource, err := b.backend.CreateResource(resourceType, resourceName, fullProps, resources.Options{
		Parent:    effectiveParent,
		DependsOn: dependsOn,
		Protect:   strings.HasPrefix(resourceType, resources.ExtensionTypePrefix),
	})
	if err != nil {
		return nil, err
	}

	b.metrics.ResourceCreated(b.name)
	b.Logger.Debugf("Created resource: type=%s name=%s parent=%s",
		resourceType, resourceName, effectiveParent.Name())

	return resource, nil
}

// ExportOutput records an output value and exports it through the backend as
// <extensionName>_<name>. Output keys are append-only across a run.
func (b *Base) ExportOutput(name string, value interface{}, parent resources.Resource) error {
	if b.backend == nil {
		return fmt.Errorf("extension %s not initialized", b.name)
	}

	b.outputs[name] = append(b.outputs[name], value)

	effectiveParent := parent
	if effectiveParent == nil {
		effectiveParent = b.root
	}
	if err := b.backend.ExportValue(b.name+"_"+name, value, resources.Options{Parent: effectiveParent}); err != nil {
		return err
	}

	b.metrics.ValueExported(b.name)
	return nil
}

// OutputData returns every value exported so far, keyed by output name.
func (b *Base) OutputData() map[string]interface{} {
	out := make(map[string]interface{}, len(b.outputs))
	for name, values := range b.outputs {
		out[name] = values
	}
	return out
}

// Cleanup exports the extension's final state and clears the scratch state.
// Accumulated outputs stay intact so output data survives cleanup.
func (b *Base) Cleanup() error {
	if b.backend == nil || b.stackName == "" {
		return nil
	}

	err := b.backend.ExportValue(b.name+"_final_state", map[string]interface{}{
		"state":   b.State,
		"outputs": b.outputs,
	}, resources.Options{Parent: b.root})
	if err != nil {
		return err
	}

	b.State = make(map[string]interface{})
	return nil
}
