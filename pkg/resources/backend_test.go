package resources

import (
	"fmt"
	"testing"
)

// stubEngine records engine calls for the backend adapter tests.
type stubEngine struct {
	created []string
	exports map[string]interface{}
	config  map[string]string
}

func (e *stubEngine) CreateResource(resourceType, name string, props map[string]interface{}, parentRef string, dependsOn []string, protect bool) (string, error) {
	e.created = append(e.created, fmt.Sprintf("%s/%s/parent=%s/deps=%d/protect=%v", resourceType, name, parentRef, len(dependsOn), protect))
	return "urn:engine:" + resourceType + "::" + name, nil
}

func (e *stubEngine) ExportValue(name string, value interface{}, parentRef string) error {
	if e.exports == nil {
		e.exports = make(map[string]interface{})
	}
	e.exports[name] = value
	return nil
}

func (e *stubEngine) CurrentStackName() string { return "engine-stack" }

func (e *stubEngine) GetConfigValue(namespace, key string) (string, bool) {
	v, ok := e.config[namespace+":"+key]
	return v, ok
}

func TestEngineBackendDelegation(t *testing.T) {
	stub := &stubEngine{config: map[string]string{"pipewright:region": "eu"}}
	backend := NewEngineBackend(stub)

	parent, err := backend.CreateResource("custom:parent", "stack.parent", nil, Options{Protect: true})
	if err != nil {
		t.Fatalf("CreateResource failed: %v", err)
	}
	if parent.URN() != "urn:engine:custom:parent::stack.parent" {
		t.Errorf("unexpected URN: %s", parent.URN())
	}

	_, err = backend.CreateResource("custom:child", "stack.child", nil, Options{
		Parent:    parent,
		DependsOn: []Resource{parent},
	})
	if err != nil {
		t.Fatalf("CreateResource failed: %v", err)
	}

	want := "custom:child/stack.child/parent=" + parent.URN() + "/deps=1/protect=false"
	if stub.created[1] != want {
		t.Errorf("engine call = %q, want %q", stub.created[1], want)
	}

	if err := backend.ExportValue("result", 7, Options{Parent: parent}); err != nil {
		t.Fatalf("ExportValue failed: %v", err)
	}
	if stub.exports["result"] != 7 {
		t.Errorf("export not delegated: %v", stub.exports)
	}

	if backend.StackName() != "engine-stack" {
		t.Errorf("StackName = %q", backend.StackName())
	}
	if v, ok := backend.ConfigValue("pipewright", "region"); !ok || v != "eu" {
		t.Errorf("ConfigValue = %q, %v", v, ok)
	}
}
