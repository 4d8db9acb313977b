package resources

import (
	"fmt"
	"strings"

	"github.com/pipewright/pipewright/pkg/telemetry"
)

// MockResource is the in-memory implementation of a resource node. Nodes form
// a forest rooted at the run's stack node: construction registers the node as
// a child of its declared parent, which is the single point of truth for the
// hierarchy. A node never discovers its children; only its parent records it.
type MockResource struct {
	resourceType string
	name         string
	props        map[string]interface{}
	protect      bool
	parent       *MockResource
	children     []*MockResource
	outputs      map[string]interface{}
	urn          string
}

// newMockResource builds a node and registers it with its parent. The parent
// must already exist, which keeps the parent graph acyclic by construction.
func newMockResource(resourceType, name string, props map[string]interface{}, parent *MockResource, protect bool) *MockResource {
	if props == nil {
		props = make(map[string]interface{})
	}
	r := &MockResource{
		resourceType: resourceType,
		name:         name,
		props:        props,
		protect:      protect,
		parent:       parent,
		outputs:      make(map[string]interface{}),
		urn:          fmt.Sprintf("urn:mock:%s::%s", resourceType, name),
	}
	if parent != nil {
		parent.addChild(r)
	}
	return r
}

// addChild records a child resource.
func (r *MockResource) addChild(child *MockResource) {
	for _, c := range r.children {
		if c == child {
			return
		}
	}
	r.children = append(r.children, child)
}

// URN returns the unique identifier of this resource.
func (r *MockResource) URN() string { return r.urn }

// Name returns the fully qualified resource name.
func (r *MockResource) Name() string { return r.name }

// Type returns the resource type tag.
func (r *MockResource) Type() string { return r.resourceType }

// Properties returns the resource property payload.
func (r *MockResource) Properties() map[string]interface{} { return r.props }

// Protected reports whether the resource is protected against replacement.
func (r *MockResource) Protected() bool { return r.protect }

// Parent returns the parent resource, or nil for the run root.
func (r *MockResource) Parent() *MockResource { return r.parent }

// Children returns the child resources in creation order.
func (r *MockResource) Children() []*MockResource { return r.children }

// IsStack reports whether this resource is a stack (run root) node.
func (r *MockResource) IsStack() bool { return r.resourceType == StackType }

// Export records a stack output value. Fails unless the receiver is a stack
// node.
func (r *MockResource) Export(name string, value interface{}) error {
	if !r.IsStack() {
		return fmt.Errorf("failed to export output %q: export target %s is not a stack", name, r.name)
	}
	r.outputs[name] = value
	return nil
}

// Output returns an exported stack output value.
func (r *MockResource) Output(name string) interface{} { return r.outputs[name] }

// MockBackend maintains the in-memory resource forest used for dry runs and
// testing. It satisfies the same Backend contract as EngineBackend.
type MockBackend struct {
	stackName string
	root      *MockResource
	resources map[string]*MockResource
	config    map[string]string
	logger    *telemetry.Logger
}

// NewMockBackend creates a mock backend with a protected stack root node.
func NewMockBackend(stackName string, logger *telemetry.Logger) *MockBackend {
	if logger == nil {
		l, _ := telemetry.NewLogger(telemetry.DefaultConfig().Logging)
		logger = l
	}
	logger = logger.NewComponentLogger("resources")

	root := newMockResource(StackType, stackName, map[string]interface{}{
		"mock": true,
		"name": stackName,
	}, nil, true)

	b := &MockBackend{
		stackName: stackName,
		root:      root,
		resources: make(map[string]*MockResource),
		config:    make(map[string]string),
		logger:    logger,
	}
	b.resources[root.urn] = root
	b.resources[stackName] = root
	return b
}

// Root returns the run root resource.
func (b *MockBackend) Root() *MockResource { return b.root }

// CreateResource creates a mock resource node. Nodes without an explicit
// parent attach to the run root so every parent chain terminates there.
func (b *MockBackend) CreateResource(resourceType, name string, props map[string]interface{}, opts Options) (Resource, error) {
	parent := b.root
	if opts.Parent != nil {
		mock, ok := opts.Parent.(*MockResource)
		if !ok {
			return nil, fmt.Errorf("parent of %s:%s is not a mock resource", resourceType, name)
		}
		parent = mock
	}

	protect := opts.Protect || strings.HasPrefix(resourceType, ExtensionTypePrefix)

	r := newMockResource(resourceType, name, props, parent, protect)
	if _, exists := b.resources[r.urn]; exists {
		b.logger.Warnf("Duplicate resource name %s, replacing previous registration", name)
	}
	b.resources[r.urn] = r
	b.resources[name] = r

	b.logger.Debugf("Created mock resource: type=%s name=%s parent=%s protect=%v",
		resourceType, name, parent.Name(), protect)

	return r, nil
}

// ExportValue records a stack output on the run root. The parent option only
// conveys placement intent; exports always land on the stack node.
func (b *MockBackend) ExportValue(name string, value interface{}, _ Options) error {
	return b.root.Export(name, value)
}

// StackName returns the mock stack name.
func (b *MockBackend) StackName() string { return b.stackName }

// SetConfigValue seeds a configuration value for lookups.
func (b *MockBackend) SetConfigValue(namespace, key, value string) {
	b.config[namespace+":"+key] = value
}

// ConfigValue returns a seeded configuration value.
func (b *MockBackend) ConfigValue(namespace, key string) (string, bool) {
	v, ok := b.config[namespace+":"+key]
	return v, ok
}

// Resource returns a resource by name or URN.
func (b *MockBackend) Resource(name string) (*MockResource, bool) {
	r, ok := b.resources[name]
	return r, ok
}

// Outputs returns a copy of the exported stack outputs.
func (b *MockBackend) Outputs() map[string]interface{} {
	out := make(map[string]interface{}, len(b.root.outputs))
	for k, v := range b.root.outputs {
		out[k] = v
	}
	return out
}

// ResourceTree serializes the resource forest from the run root, emitting
// type, name, properties, URN and children for inspection and testing.
func (b *MockBackend) ResourceTree() map[string]interface{} {
	return buildTree(b.root)
}

func buildTree(r *MockResource) map[string]interface{} {
	children := make([]map[string]interface{}, 0, len(r.children))
	for _, child := range r.children {
		children = append(children, buildTree(child))
	}
	return map[string]interface{}{
		"type":     r.resourceType,
		"name":     r.name,
		"props":    r.props,
		"urn":      r.urn,
		"children": children,
	}
}
