package pipeline

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Load reads a pipeline definition from a YAML file. The document must have
// a single top-level key naming the pipeline; its value holds the core
// section plus one section per extension. Extension sections may be either a
// list of named items, which is keyed by each item's name field, or an
// inline mapping, which is taken as-is.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file %s: %w", path, err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pipeline file %s: %w", path, err)
	}
	return def, nil
}

// Parse parses a pipeline definition from YAML bytes. Section order in the
// document is preserved as the extension execution order.
func Parse(data []byte) (*Definition, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("empty pipeline document")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode || len(root.Content) < 2 {
		return nil, fmt.Errorf("pipeline document must be a mapping with a single pipeline entry")
	}

	// The first top-level key names the pipeline. Additional pipelines in
	// the same document are ignored.
	name := root.Content[0].Value
	body := root.Content[1]
	if body.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("pipeline %s must be a mapping of sections", name)
	}

	def := &Definition{
		Name:       name,
		Core:       CoreConfig{ExecutionDefaults: defaultExecutionDefaults()},
		Extensions: make(map[string]map[string]interface{}),
	}

	for i := 0; i+1 < len(body.Content); i += 2 {
		key := body.Content[i].Value
		val := body.Content[i+1]

		if key == "core" {
			if err := val.Decode(&def.Core); err != nil {
				return nil, fmt.Errorf("invalid core section: %w", err)
			}
			continue
		}

		section, err := decodeSection(key, val)
		if err != nil {
			return nil, err
		}
		def.Extensions[key] = section
		def.ExtensionOrder = append(def.ExtensionOrder, key)
	}

	if err := validate.Struct(&def.Core); err != nil {
		return nil, fmt.Errorf("invalid core section: %w", err)
	}
	return def, nil
}

// decodeSection turns an extension section into a single configuration map.
// List sections are keyed by each item's name; items without a name are
// rejected so a typo does not silently drop configuration.
func decodeSection(key string, val *yaml.Node) (map[string]interface{}, error) {
	switch val.Kind {
	case yaml.MappingNode:
		var section map[string]interface{}
		if err := val.Decode(&section); err != nil {
			return nil, fmt.Errorf("invalid section %s: %w", key, err)
		}
		return section, nil
	case yaml.SequenceNode:
		var items []map[string]interface{}
		if err := val.Decode(&items); err != nil {
			return nil, fmt.Errorf("section %s must be a list of named items: %w", key, err)
		}
		section := make(map[string]interface{}, len(items))
		for idx, item := range items {
			itemName, ok := item["name"].(string)
			if !ok || itemName == "" {
				return nil, fmt.Errorf("section %s item %d has no name", key, idx)
			}
			section[itemName] = asInterfaceMap(item)
		}
		return section, nil
	case yaml.ScalarNode:
		if val.Tag == "!!null" {
			return map[string]interface{}{}, nil
		}
	}
	return nil, fmt.Errorf("section %s must be a mapping or a list of named items", key)
}

func asInterfaceMap(item map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}
