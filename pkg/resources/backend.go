package resources

// Resource types used by the orchestration core.
const (
	// StackType is the resource type of the run root.
	StackType = "pipewright:stack:Stack"

	// ExtensionTypePrefix marks extension root resources. Resources of
	// these types are protected against destructive replacement.
	ExtensionTypePrefix = "pipewright:extension:"
)

// Resource is a handle to a provisioned or mock resource node.
type Resource interface {
	// URN returns the globally unique identifier of the resource.
	URN() string

	// Name returns the fully qualified resource name.
	Name() string

	// Type returns the namespaced resource type tag.
	Type() string
}

// Options carries placement options for resource creation and export.
type Options struct {
	// Parent is the parent resource. When nil, the run root is used.
	Parent Resource

	// DependsOn lists resources this resource depends on.
	DependsOn []Resource

	// Protect marks the resource against destructive replacement on reapply.
	Protect bool
}

// Backend is the resource-provisioning contract seen by the orchestrator and
// by extensions. The mock tree and the real engine expose identical behavior
// so extension code stays backend-agnostic.
type Backend interface {
	// CreateResource creates a resource node with the given type, fully
	// qualified name and properties.
	CreateResource(resourceType, name string, props map[string]interface{}, opts Options) (Resource, error)

	// ExportValue exports a stack output value under the given name.
	ExportValue(name string, value interface{}, opts Options) error

	// StackName returns the name of the current stack (the run root).
	StackName() string

	// ConfigValue returns a configuration value for the given namespace and
	// key, and whether it was present.
	ConfigValue(namespace, key string) (string, bool)
}

// ProvisioningEngine is the outward contract of the external provisioning
// backend. The concrete engine lives outside this repository; EngineBackend
// adapts it to the Backend contract.
type ProvisioningEngine interface {
	// CreateResource registers a resource with the engine and returns its
	// reference (URN).
	CreateResource(resourceType, name string, props map[string]interface{}, parentRef string, dependsOn []string, protect bool) (string, error)

	// ExportValue exports a stack output value.
	ExportValue(name string, value interface{}, parentRef string) error

	// CurrentStackName returns the engine's current stack name.
	CurrentStackName() string

	// GetConfigValue returns a configuration value, and whether it exists.
	GetConfigValue(namespace, key string) (string, bool)
}

// engineResource is the Resource handle returned by EngineBackend.
type engineResource struct {
	urn          string
	name         string
	resourceType string
}

func (r *engineResource) URN() string  { return r.urn }
func (r *engineResource) Name() string { return r.name }
func (r *engineResource) Type() string { return r.resourceType }

// EngineBackend delegates resource creation and export to an external
// provisioning engine.
type EngineBackend struct {
	engine ProvisioningEngine
}

// NewEngineBackend creates a Backend backed by the external engine.
func NewEngineBackend(engine ProvisioningEngine) *EngineBackend {
	return &EngineBackend{engine: engine}
}

// CreateResource delegates node creation to the engine.
func (b *EngineBackend) CreateResource(resourceType, name string, props map[string]interface{}, opts Options) (Resource, error) {
	parentRef := ""
	if opts.Parent != nil {
		parentRef = opts.Parent.URN()
	}

	dependsOn := make([]string, 0, len(opts.DependsOn))
	for _, dep := range opts.DependsOn {
		dependsOn = append(dependsOn, dep.URN())
	}

	urn, err := b.engine.CreateResource(resourceType, name, props, parentRef, dependsOn, opts.Protect)
	if err != nil {
		return nil, err
	}

	return &engineResource{
		urn:          urn,
		name:         name,
		resourceType: resourceType,
	}, nil
}

// ExportValue delegates export to the engine.
func (b *EngineBackend) ExportValue(name string, value interface{}, opts Options) error {
	parentRef := ""
	if opts.Parent != nil {
		parentRef = opts.Parent.URN()
	}
	return b.engine.ExportValue(name, value, parentRef)
}

// StackName returns the engine's current stack name.
func (b *EngineBackend) StackName() string {
	return b.engine.CurrentStackName()
}

// ConfigValue returns a configuration value from the engine.
func (b *EngineBackend) ConfigValue(namespace, key string) (string, bool) {
	return b.engine.GetConfigValue(namespace, key)
}
