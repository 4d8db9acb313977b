package pipeline

// ExecutionDefaults carries the default execution settings for a pipeline.
// They are parsed and validated for the pipeline contract; the sequential
// run loop itself does not retry.
type ExecutionDefaults struct {
	// TimeoutSeconds is the default per-extension timeout.
	TimeoutSeconds int `yaml:"timeout_seconds" validate:"gte=0"`

	// MaxAttempts is the default number of execution attempts.
	MaxAttempts int `yaml:"max_attempts" validate:"gte=1"`

	// DelaySeconds is the delay between attempts.
	DelaySeconds int `yaml:"delay_seconds" validate:"gte=0"`

	// ExponentialBackoff enables exponential backoff between attempts.
	ExponentialBackoff bool `yaml:"exponential_backoff"`
}

// CoreConfig is the core section of a pipeline definition.
type CoreConfig struct {
	// ExecutionDefaults are the default execution settings.
	ExecutionDefaults ExecutionDefaults `yaml:"execution_defaults"`

	// ExtensionDir is the directory scanned for installable extensions.
	ExtensionDir string `yaml:"extension_dir"`

	// StatePath is the path of the run-history database. Empty disables
	// run persistence.
	StatePath string `yaml:"state_path"`
}

// Definition is a parsed pipeline: the core section plus one raw
// configuration map per extension. ExtensionOrder preserves the declaration
// order from the YAML document; the orchestrator executes in that order.
type Definition struct {
	// Name is the pipeline name (the single top-level document key).
	Name string

	// Core holds execution defaults and the extension search directory.
	Core CoreConfig

	// Extensions maps extension name to its raw configuration.
	Extensions map[string]map[string]interface{}

	// ExtensionOrder lists extension names in declaration order.
	ExtensionOrder []string
}

// RequiredExtensions returns the extension names the pipeline declares, in
// declaration order.
func (d *Definition) RequiredExtensions() []string {
	out := make([]string, len(d.ExtensionOrder))
	copy(out, d.ExtensionOrder)
	return out
}

// defaultExecutionDefaults mirrors the documented pipeline defaults.
func defaultExecutionDefaults() ExecutionDefaults {
	return ExecutionDefaults{
		TimeoutSeconds:     300,
		MaxAttempts:        3,
		DelaySeconds:       5,
		ExponentialBackoff: true,
	}
}
