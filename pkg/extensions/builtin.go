package extensions

import (
	"github.com/pipewright/pipewright/pkg/engine"
	"github.com/pipewright/pipewright/pkg/extensions/secrets"
	"github.com/pipewright/pipewright/pkg/extensions/shell"
)

// Builtins returns the factories compiled into the binary.
func Builtins() map[string]engine.Factory {
	return map[string]engine.Factory{
		"shell":   shell.New,
		"secrets": secrets.New,
	}
}

// RegisterBuiltins registers every builtin factory on the registry.
func (r *Registry) RegisterBuiltins() {
	for name, factory := range Builtins() {
		r.RegisterBuiltin(name, factory)
	}
}
