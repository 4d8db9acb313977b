package engine

import (
	"reflect"
	"testing"

	"github.com/pipewright/pipewright/pkg/resources"
)

func newTestBase(t *testing.T) (*Base, *resources.MockBackend) {
	t.Helper()
	backend := resources.NewMockBackend("test", testLogger(t))
	base := &Base{}
	if err := base.Init("demo", "pipeline", backend, testLogger(t)); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return base, backend
}

func TestBaseInitCreatesProtectedRoot(t *testing.T) {
	base, backend := newTestBase(t)

	if base.Namespace() != "pipeline.demo" {
		t.Errorf("Namespace = %q, want pipeline.demo", base.Namespace())
	}

	root, ok := backend.Resource("pipeline.demo")
	if !ok {
		t.Fatalf("extension root not registered")
	}
	if root.Type() != resources.ExtensionTypePrefix+"demo" {
		t.Errorf("root type = %q", root.Type())
	}
	if !root.Protected() {
		t.Errorf("extension root must be protected")
	}
	if root.Parent() != backend.Root() {
		t.Errorf("extension root must parent to the run root")
	}
}

func TestBaseCreateResourceQualifiesName(t *testing.T) {
	base, backend := newTestBase(t)

	r, err := base.CreateResource("custom:thing", "one", map[string]interface{}{"size": 2}, nil, nil)
	if err != nil {
		t.Fatalf("CreateResource failed: %v", err)
	}
	if r.Name() != "pipeline.demo.one" {
		t.Errorf("Name = %q, want pipeline.demo.one", r.Name())
	}

	mock, _ := backend.Resource("pipeline.demo.one")
	if mock.Parent() != base.Root() {
		t.Errorf("default parent must be the extension root")
	}
	props := mock.Properties()
	if props["extension"] != "demo" || props["stack"] != "pipeline.demo" || props["size"] != 2 {
		t.Errorf("unexpected props: %v", props)
	}
}

func TestBaseExportOutputAccumulates(t *testing.T) {
	base, backend := newTestBase(t)

	if err := base.ExportOutput("result", "first", nil); err != nil {
		t.Fatalf("ExportOutput failed: %v", err)
	}
	if err := base.ExportOutput("result", "second", nil); err != nil {
		t.Fatalf("ExportOutput failed: %v", err)
	}

	// The backend sees the latest value under the prefixed name.
	if got := backend.Outputs()["demo_result"]; got != "second" {
		t.Errorf("exported value = %v, want second", got)
	}

	// OutputData keeps every value, append-only.
	data := base.OutputData()
	want := []interface{}{"first", "second"}
	if !reflect.DeepEqual(data["result"], want) {
		t.Errorf("OutputData = %v, want %v", data["result"], want)
	}
}

func TestBaseCleanupExportsFinalState(t *testing.T) {
	base, backend := newTestBase(t)

	base.State["phase"] = "done"
	if err := base.ExportOutput("result", "ok", nil); err != nil {
		t.Fatalf("ExportOutput failed: %v", err)
	}

	if err := base.Cleanup(); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	final, ok := backend.Outputs()["demo_final_state"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing final state export: %v", backend.Outputs())
	}
	state := final["state"].(map[string]interface{})
	if state["phase"] != "done" {
		t.Errorf("final state = %v", state)
	}

	if len(base.State) != 0 {
		t.Errorf("scratch state must be cleared after cleanup")
	}
	if len(base.OutputData()) == 0 {
		t.Errorf("outputs must survive cleanup")
	}
}

func TestBaseUninitialized(t *testing.T) {
	base := &Base{}
	if _, err := base.CreateResource("custom:thing", "one", nil, nil, nil); err == nil {
		t.Errorf("CreateResource must fail before Init")
	}
	if err := base.ExportOutput("result", 1, nil); err == nil {
		t.Errorf("ExportOutput must fail before Init")
	}
	if err := base.Cleanup(); err != nil {
		t.Errorf("Cleanup before Init must be a no-op, got %v", err)
	}
}
