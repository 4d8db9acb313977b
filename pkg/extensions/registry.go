package extensions

import (
	"fmt"
	"os"
	"path/filepath"
	"plugin"
	"reflect"
	"sort"
	"strings"

	"github.com/pipewright/pipewright/pkg/engine"
	"github.com/pipewright/pipewright/pkg/telemetry"
)

const (
	pluginPrefix = "pipewright_extension_"
	pluginSuffix = ".so"

	// pluginSymbol is the factory symbol an extension shared object must
	// export: func() engine.Extension.
	pluginSymbol = "NewExtension"
)

// requiredMethods is the capability surface every extension must implement.
var requiredMethods = []string{"Init", "ValidateConfig", "Execute", "Cleanup"}

// Descriptor describes one discoverable extension.
type Descriptor struct {
	// Name is the extension name used in pipeline definitions.
	Name string `json:"name"`

	// Source is "builtin" or "plugin".
	Source string `json:"source"`

	// Path is the shared object path for plugin extensions.
	Path string `json:"path,omitempty"`
}

// Registry resolves extension names to factories. Builtin extensions are
// compiled in; installable extensions are shared objects named
// pipewright_extension_<name>.so in the extension directory. A plugin with
// the same name as a builtin shadows the builtin.
type Registry struct {
	dir      string
	logger   *telemetry.Logger
	builtins map[string]engine.Factory
}

// NewRegistry creates a registry scanning dir for installable extensions.
// An empty dir disables plugin discovery.
func NewRegistry(dir string, logger *telemetry.Logger) *Registry {
	return &Registry{
		dir:      dir,
		logger:   logger,
		builtins: make(map[string]engine.Factory),
	}
}

// RegisterBuiltin registers a compiled-in extension factory.
func (r *Registry) RegisterBuiltin(name string, factory engine.Factory) {
	r.builtins[name] = factory
}

// Discover lists every available extension, sorted by name. Plugins shadow
// builtins of the same name.
func (r *Registry) Discover() ([]Descriptor, error) {
	byName := make(map[string]Descriptor, len(r.builtins))
	for name := range r.builtins {
		byName[name] = Descriptor{Name: name, Source: "builtin"}
	}

	if r.dir != "" {
		entries, err := os.ReadDir(r.dir)
		if err != nil && !os.IsNotExist(err) {
			return nil, engine.NewConfigurationError(
				fmt.Sprintf("failed to scan extension directory %s", r.dir), err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name, ok := pluginName(entry.Name())
			if !ok {
				continue
			}
			if prev, shadowed := byName[name]; shadowed && prev.Source == "builtin" {
				r.logger.Debugf("Extension %s from directory shadows builtin", name)
			}
			byName[name] = Descriptor{
				Name:   name,
				Source: "plugin",
				Path:   filepath.Join(r.dir, entry.Name()),
			}
		}
	}

	out := make([]Descriptor, 0, len(byName))
	for _, d := range byName {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Load resolves a single extension name to a factory.
func (r *Registry) Load(name string) (engine.Factory, error) {
	available, err := r.Discover()
	if err != nil {
		return nil, err
	}
	for _, d := range available {
		if d.Name == name {
			return r.loadDescriptor(d)
		}
	}
	return nil, engine.NewExtensionNotFoundError(name)
}

// LoadAll resolves the required extension names that are discoverable.
// A required name that is not installed is logged and omitted, and a
// failing load is logged and skipped, so one bad extension never blocks
// the rest. The orchestrator skips extensions without a factory.
func (r *Registry) LoadAll(required []string) (map[string]engine.Factory, error) {
	available, err := r.Discover()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]Descriptor, len(available))
	for _, d := range available {
		byName[d.Name] = d
	}

	factories := make(map[string]engine.Factory, len(required))
	for _, name := range required {
		d, ok := byName[name]
		if !ok {
			r.logger.Warnf("Extension %s is not installed, skipping", name)
			continue
		}
		factory, err := r.loadDescriptor(d)
		if err != nil {
			r.logger.WithError(err).Warnf("Failed to load extension %s, skipping", name)
			continue
		}
		factories[name] = factory
	}
	return factories, nil
}

// Status reports extension availability against a pipeline's requirements.
type Status struct {
	// Required is the extension order declared by the pipeline.
	Required []string `json:"required"`

	// Installed lists every discoverable extension.
	Installed []string `json:"installed"`

	// Loaded lists required extensions that resolved to a factory.
	Loaded []string `json:"loaded"`

	// Missing lists required extensions that are absent or failed to load.
	Missing []string `json:"missing"`

	// Extra lists installed extensions the pipeline does not require.
	Extra []string `json:"extra"`
}

// CheckStatus loads the required extensions and classifies every name as
// loaded, missing, or extra.
func (r *Registry) CheckStatus(required []string) (Status, error) {
	available, err := r.Discover()
	if err != nil {
		return Status{}, err
	}
	byName := make(map[string]Descriptor, len(available))
	installed := make([]string, 0, len(available))
	for _, d := range available {
		byName[d.Name] = d
		installed = append(installed, d.Name)
	}

	status := Status{
		Required:  append([]string(nil), required...),
		Installed: installed,
	}
	requiredSet := make(map[string]bool, len(required))
	for _, name := range required {
		requiredSet[name] = true
		d, ok := byName[name]
		if !ok {
			status.Missing = append(status.Missing, name)
			continue
		}
		if _, err := r.loadDescriptor(d); err != nil {
			r.logger.WithError(err).Warnf("Extension %s is installed but failed to load", name)
			status.Missing = append(status.Missing, name)
			continue
		}
		status.Loaded = append(status.Loaded, name)
	}
	for _, name := range installed {
		if !requiredSet[name] {
			status.Extra = append(status.Extra, name)
		}
	}
	return status, nil
}

func (r *Registry) loadDescriptor(d Descriptor) (engine.Factory, error) {
	if d.Source == "builtin" {
		return r.builtins[d.Name], nil
	}
	return r.loadPlugin(d)
}

// loadPlugin opens an extension shared object and resolves its factory
// symbol. The produced extension is capability-checked so a partial
// implementation is reported with the missing method names instead of
// failing later mid-run.
func (r *Registry) loadPlugin(d Descriptor) (engine.Factory, error) {
	p, err := plugin.Open(d.Path)
	if err != nil {
		return nil, engine.NewExtensionLoadError(
			fmt.Sprintf("failed to open extension plugin %s", d.Path),
			d.Name,
			map[string]interface{}{"error": err.Error()},
		)
	}
	sym, err := p.Lookup(pluginSymbol)
	if err != nil {
		return nil, engine.NewExtensionLoadError(
			fmt.Sprintf("extension plugin %s does not export %s", d.Path, pluginSymbol),
			d.Name,
			map[string]interface{}{"error": err.Error()},
		)
	}

	switch factory := sym.(type) {
	case func() engine.Extension:
		return engine.Factory(factory), nil
	case func() interface{}:
		// Looser factory signature: check the produced value implements
		// the extension contract and name what is missing if not.
		return wrapLooseFactory(d, factory)
	default:
		return nil, engine.NewExtensionLoadError(
			fmt.Sprintf("extension plugin %s exports %s with unsupported type %T", d.Path, pluginSymbol, sym),
			d.Name, nil,
		)
	}
}

func wrapLooseFactory(d Descriptor, factory func() interface{}) (engine.Factory, error) {
	probe := factory()
	if missing := missingMethods(probe); len(missing) > 0 {
		return nil, engine.NewExtensionValidationError(
			fmt.Sprintf("extension %s does not implement the extension contract", d.Name),
			d.Name,
			map[string]interface{}{"missing_methods": missing},
		)
	}
	return func() engine.Extension {
		return factory().(engine.Extension)
	}, nil
}

// missingMethods returns the names of required extension methods the value
// does not have.
func missingMethods(v interface{}) []string {
	if _, ok := v.(engine.Extension); ok {
		return nil
	}
	var missing []string
	t := reflect.TypeOf(v)
	if t == nil {
		return append(missing, requiredMethods...)
	}
	for _, name := range requiredMethods {
		if _, ok := t.MethodByName(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		// All names exist but a signature differs.
		missing = append(missing, "(method signature mismatch)")
	}
	return missing
}

func pluginName(filename string) (string, bool) {
	if !strings.HasPrefix(filename, pluginPrefix) || !strings.HasSuffix(filename, pluginSuffix) {
		return "", false
	}
	name := strings.TrimSuffix(strings.TrimPrefix(filename, pluginPrefix), pluginSuffix)
	if name == "" {
		return "", false
	}
	return name, true
}
