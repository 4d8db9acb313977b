package engine

import (
	"regexp"

	"github.com/pipewright/pipewright/pkg/telemetry"
)

// ExecutionState tracks where an extension is in its lifecycle. Transitions
// are monotonic within a run: registered -> starting -> success|failed ->
// cleaned|cleanup_failed.
type ExecutionState string

const (
	StateRegistered    ExecutionState = "registered"
	StateStarting      ExecutionState = "starting"
	StateSuccess       ExecutionState = "success"
	StateFailed        ExecutionState = "failed"
	StateCleaned       ExecutionState = "cleaned"
	StateCleanupFailed ExecutionState = "cleanup_failed"
)

// Reference grammars. Secret references name a vault and key; group
// references name an extension, a run, a group and optionally a node.
var (
	secretRefPattern = regexp.MustCompile(`^_secret:(\w+):(\w+)`)
	groupRefPattern  = regexp.MustCompile(`^_group:(\w+):(\w+):(\w+)(?::(\w+))?`)
)

// SecretSource supplies secret vaults from the host environment. Real secret
// storage stays outside the orchestration core; hosts register sources to
// back the _secret reference grammar.
type SecretSource interface {
	// LoadVault returns the key/value content of a vault, and whether the
	// vault exists.
	LoadVault(vault string) (map[string]interface{}, bool)
}

// PipelineState holds global pipeline state: per-extension execution status,
// per-extension output data, loaded secrets, and the reference-resolution
// grammar that mediates data flow between extensions.
type PipelineState struct {
	logger  *telemetry.Logger
	metrics *telemetry.Metrics

	executionState map[string]ExecutionState
	extensionData  map[string]map[string]interface{}
	secrets        map[string]map[string]interface{}
	secretSources  []SecretSource
}

// NewPipelineState creates an empty state store. Metrics may be nil.
func NewPipelineState(logger *telemetry.Logger, metrics *telemetry.Metrics) *PipelineState {
	return &PipelineState{
		logger:         logger.NewComponentLogger("state"),
		metrics:        metrics,
		executionState: make(map[string]ExecutionState),
		extensionData:  make(map[string]map[string]interface{}),
		secrets:        make(map[string]map[string]interface{}),
	}
}

// SetExtensionState records the execution state for an extension.
func (s *PipelineState) SetExtensionState(name string, state ExecutionState) {
	s.executionState[name] = state
	s.logger.Debugf("Extension %s state changed to: %s", name, state)
}

// ExtensionState returns the execution state for an extension. A missing key
// logs a warning and returns the empty state.
func (s *PipelineState) ExtensionState(name string) ExecutionState {
	state, ok := s.executionState[name]
	if !ok {
		s.logger.Warnf("No state found for extension: %s", name)
		return ""
	}
	return state
}

// ExtensionStates returns a copy of every extension's current state.
func (s *PipelineState) ExtensionStates() map[string]ExecutionState {
	out := make(map[string]ExecutionState, len(s.executionState))
	for name, state := range s.executionState {
		out[name] = state
	}
	return out
}

// StoreExtensionData stores data produced by an extension.
func (s *PipelineState) StoreExtensionData(name string, data map[string]interface{}) {
	s.extensionData[name] = data
	s.logger.Debugf("Stored data for extension: %s", name)
}

// ExtensionData returns data produced by an extension, or nil with a warning
// when none was stored.
func (s *PipelineState) ExtensionData(name string) map[string]interface{} {
	data, ok := s.extensionData[name]
	if !ok {
		s.logger.Warnf("No data found for extension: %s", name)
		return nil
	}
	return data
}

// AllExtensionData returns a copy of every extension's stored data, keyed by
// extension name. Callers cannot mutate internal state through the result.
func (s *PipelineState) AllExtensionData() map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{}, len(s.extensionData))
	for name, data := range s.extensionData {
		copied := make(map[string]interface{}, len(data))
		for k, v := range data {
			copied[k] = v
		}
		out[name] = copied
	}
	return out
}

// RegisterSecretSource registers a host-supplied secret source consulted for
// vaults not loaded inline.
func (s *PipelineState) RegisterSecretSource(source SecretSource) {
	s.secretSources = append(s.secretSources, source)
}

// LoadSecrets loads secrets from the secrets extension configuration. Inline
// vaults live under a "vaults" section mapping vault name to key/value pairs;
// anything else is left to registered secret sources.
func (s *PipelineState) LoadSecrets(config map[string]interface{}) {
	s.logger.Info("Loading secrets from configuration")

	vaults, ok := config["vaults"].(map[string]interface{})
	if !ok {
		// Item-keyed sections nest the vaults map one level down.
		vaults = make(map[string]interface{})
		for _, item := range config {
			itemMap, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			nested, ok := itemMap["vaults"].(map[string]interface{})
			if !ok {
				continue
			}
			for vault, content := range nested {
				vaults[vault] = content
			}
		}
	}
	for vault, content := range vaults {
		values, ok := content.(map[string]interface{})
		if !ok {
			s.logger.Warnf("Ignoring vault %s: content is not a map", vault)
			continue
		}
		if s.secrets[vault] == nil {
			s.secrets[vault] = make(map[string]interface{})
		}
		for k, v := range values {
			s.secrets[vault][k] = v
		}
		s.logger.Debugf("Loaded vault %s with %d entries", vault, len(values))
	}
}

// resolveSecretReference resolves a _secret:<vault>:<key> token. A missing
// vault or key degrades to nil with a warning, never an error.
func (s *PipelineState) resolveSecretReference(reference string) interface{} {
	match := secretRefPattern.FindStringSubmatch(reference)
	if match == nil {
		return reference
	}

	vaultName, secretKey := match[1], match[2]
	vault, ok := s.secrets[vaultName]
	if !ok {
		for _, source := range s.secretSources {
			if loaded, found := source.LoadVault(vaultName); found {
				s.secrets[vaultName] = loaded
				vault = loaded
				ok = true
				break
			}
		}
	}

	var secret interface{}
	if ok {
		secret = vault[secretKey]
	}
	if secret == nil {
		s.logger.Warnf("Could not resolve secret reference: %s", reference)
		s.metrics.ReferenceResolved("secret", "missing")
		return nil
	}
	s.metrics.ReferenceResolved("secret", "resolved")
	return secret
}

// resolveGroupReference resolves a _group:<ext>:<run>:<group>[:<node>] token
// against previously stored extension data under the key "<run>.<group>".
func (s *PipelineState) resolveGroupReference(reference string) interface{} {
	match := groupRefPattern.FindStringSubmatch(reference)
	if match == nil {
		return reference
	}

	extName, runName, groupName, nodeName := match[1], match[2], match[3], match[4]
	extData := s.extensionData[extName]
	groupData := extData[runName+"."+groupName]
	if groupData == nil {
		s.logger.Warnf("Could not resolve group reference: %s", reference)
		s.metrics.ReferenceResolved("group", "missing")
		return nil
	}

	if nodeName != "" {
		group, ok := groupData.(map[string]interface{})
		if !ok {
			s.logger.Warnf("Group data for %s is not a map, cannot select node %s", reference, nodeName)
			s.metrics.ReferenceResolved("group", "missing")
			return nil
		}
		nodeData, ok := group[nodeName]
		if !ok || nodeData == nil {
			s.logger.Warnf("Node %s not found in group: %s", nodeName, reference)
			s.metrics.ReferenceResolved("group", "missing")
			return nil
		}
		s.metrics.ReferenceResolved("group", "resolved")
		return nodeData
	}

	s.metrics.ReferenceResolved("group", "resolved")
	return groupData
}

// ResolveReferences recursively resolves all reference tokens in a
// configuration tree, preserving structure and order. Resolution is a single
// pass: resolved values are never re-resolved, so resolving an already
// resolved structure returns it unchanged.
func (s *PipelineState) ResolveReferences(config map[string]interface{}) map[string]interface{} {
	resolved := make(map[string]interface{}, len(config))
	for key, value := range config {
		resolved[key] = s.resolveValue(value)
	}
	return resolved
}

func (s *PipelineState) resolveValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return s.ResolveReferences(v)
	case []interface{}:
		items := make([]interface{}, len(v))
		for i, item := range v {
			items[i] = s.resolveValue(item)
		}
		return items
	case string:
		switch {
		case secretRefPattern.MatchString(v):
			return s.resolveSecretReference(v)
		case groupRefPattern.MatchString(v):
			return s.resolveGroupReference(v)
		default:
			return v
		}
	default:
		return value
	}
}
