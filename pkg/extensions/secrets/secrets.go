package secrets

import (
	"fmt"
	"sort"

	"github.com/pipewright/pipewright/pkg/engine"
)

// Extension validates vault configuration and records which vaults a run
// carries. The secret values themselves are loaded into the pipeline state
// before execution starts and never appear in resources, exports, or logs.
type Extension struct {
	engine.Base
}

// New creates the secrets extension.
func New() engine.Extension {
	return &Extension{}
}

// ValidateConfig checks that every configured vault is a mapping of string
// keys to values.
func (e *Extension) ValidateConfig(config map[string]interface{}) error {
	vaults := collectVaults(config)
	if len(vaults) == 0 {
		return fmt.Errorf("secrets configuration has no vaults")
	}
	for name, content := range vaults {
		if _, ok := content.(map[string]interface{}); !ok {
			return fmt.Errorf("vault %s must be a mapping of keys to values", name)
		}
	}
	return nil
}

// Execute records one resource per vault carrying only the vault name and
// entry count.
func (e *Extension) Execute(config map[string]interface{}) error {
	vaults := collectVaults(config)

	names := make([]string, 0, len(vaults))
	for name := range vaults {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		entries, _ := vaults[name].(map[string]interface{})
		if _, err := e.CreateResource("secrets:vault:"+name, name, map[string]interface{}{
			"vault":       name,
			"entry_count": len(entries),
		}, nil, nil); err != nil {
			return err
		}
	}
	return e.ExportOutput("vaults", names, nil)
}

// collectVaults gathers vault maps from the configuration, accepting both a
// top-level vaults key and item-keyed sections nesting one.
func collectVaults(config map[string]interface{}) map[string]interface{} {
	if vaults, ok := config["vaults"].(map[string]interface{}); ok {
		return vaults
	}
	merged := make(map[string]interface{})
	for _, item := range config {
		itemMap, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		nested, ok := itemMap["vaults"].(map[string]interface{})
		if !ok {
			continue
		}
		for name, content := range nested {
			merged[name] = content
		}
	}
	return merged
}
