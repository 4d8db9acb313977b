package extensions

import (
	"context"
	"strings"
	"testing"

	"github.com/pipewright/pipewright/pkg/engine"
	"github.com/pipewright/pipewright/pkg/pipeline"
	"github.com/pipewright/pipewright/pkg/resources"
	"github.com/pipewright/pipewright/pkg/telemetry"
)

// TestPipelineEndToEnd runs a whole pipeline through the real registry,
// orchestrator, and builtin extensions against the in-memory backend:
// secrets load before the shell extension runs, the shell command sees a
// resolved secret, and the run's aggregate output carries the command
// output.
func TestPipelineEndToEnd(t *testing.T) {
	def := &pipeline.Definition{
		Name: "release",
		// Shell is declared ahead of secrets; secret loading still happens
		// before any extension executes.
		ExtensionOrder: []string{"shell", "secrets"},
		Extensions: map[string]map[string]interface{}{
			"secrets": {
				"vaults": map[string]interface{}{
					"main": map[string]interface{}{"greeting": "hi"},
				},
			},
			"shell": {
				"build": map[string]interface{}{
					"commands":    []interface{}{"echo build $WORD"},
					"environment": map[string]interface{}{"WORD": "_secret:main:greeting"},
				},
			},
		},
	}

	tel := &telemetry.Telemetry{Logger: testLogger(t)}
	backend := resources.NewMockBackend("release", tel.Logger)

	registry := NewRegistry("", tel.Logger)
	registry.RegisterBuiltins()
	factories, err := registry.LoadAll(def.RequiredExtensions())
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	orch, err := engine.NewOrchestrator("release", backend, def, tel)
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}
	orch.RegisterExtensions(factories)

	if err := orch.Execute(context.Background()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if err := orch.Cleanup(); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	for _, name := range []string{"shell", "secrets"} {
		if got := orch.State().ExtensionState(name); got != engine.StateCleaned {
			t.Errorf("%s state = %s, want %s", name, got, engine.StateCleaned)
		}
	}

	data := orch.State().AllExtensionData()
	shellData, ok := data["shell"]
	if !ok {
		t.Fatalf("aggregate output missing a shell entry: %v", data)
	}
	history, ok := shellData["build_output"].([]interface{})
	if !ok || len(history) == 0 {
		t.Fatalf("missing build output history: %v", shellData)
	}
	latest := history[len(history)-1].(map[string]interface{})
	results := latest["results"].([]map[string]interface{})
	if len(results) != 1 {
		t.Fatalf("expected one command result, got %v", results)
	}
	if got := results[0]["output"]; got != "build hi" {
		t.Errorf("command output = %v, want %q", got, "build hi")
	}

	if _, ok := backend.Resource("release.shell.build"); !ok {
		t.Errorf("expected a build command resource under the shell namespace")
	}
	if _, ok := backend.Resource("release.secrets.main"); !ok {
		t.Errorf("expected a vault resource under the secrets namespace")
	}
	for name := range backend.Outputs() {
		if strings.Contains(name, "greeting") {
			t.Errorf("secret key leaked into stack outputs: %s", name)
		}
	}
}
