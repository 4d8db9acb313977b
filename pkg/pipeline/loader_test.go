package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const samplePipeline = `
deploy:
  core:
    execution_defaults:
      timeout_seconds: 60
      max_attempts: 2
      delay_seconds: 1
      exponential_backoff: false
    extension_dir: ./extensions
    state_path: runs.db
  secrets:
    vaults:
      main:
        api_key: s3cret
  shell:
    - name: build
      commands:
        - make build
    - name: test
      commands:
        - make test
`

func TestParsePipeline(t *testing.T) {
	def, err := Parse([]byte(samplePipeline))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if def.Name != "deploy" {
		t.Errorf("Name = %q, want deploy", def.Name)
	}
	if def.Core.ExtensionDir != "./extensions" {
		t.Errorf("ExtensionDir = %q", def.Core.ExtensionDir)
	}
	if def.Core.StatePath != "runs.db" {
		t.Errorf("StatePath = %q", def.Core.StatePath)
	}
	if def.Core.ExecutionDefaults.TimeoutSeconds != 60 {
		t.Errorf("TimeoutSeconds = %d, want 60", def.Core.ExecutionDefaults.TimeoutSeconds)
	}
	if def.Core.ExecutionDefaults.ExponentialBackoff {
		t.Errorf("ExponentialBackoff should be overridden to false")
	}
}

func TestParsePreservesDeclarationOrder(t *testing.T) {
	def, err := Parse([]byte(samplePipeline))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	want := []string{"secrets", "shell"}
	got := def.RequiredExtensions()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("extension order = %v, want %v", got, want)
	}
}

func TestParseListSectionKeyedByName(t *testing.T) {
	def, err := Parse([]byte(samplePipeline))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	shell := def.Extensions["shell"]
	build, ok := shell["build"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected build item keyed by name, got %v", shell)
	}
	commands, ok := build["commands"].([]interface{})
	if !ok || len(commands) != 1 || commands[0] != "make build" {
		t.Errorf("build commands = %v", build["commands"])
	}
	if _, ok := shell["test"]; !ok {
		t.Errorf("expected test item keyed by name")
	}
}

func TestParseDefaults(t *testing.T) {
	def, err := Parse([]byte("minimal:\n  shell:\n    - name: x\n      commands: [ls]\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	d := def.Core.ExecutionDefaults
	if d.TimeoutSeconds != 300 || d.MaxAttempts != 3 || d.DelaySeconds != 5 || !d.ExponentialBackoff {
		t.Errorf("unexpected defaults: %+v", d)
	}
}

func TestParseRejectsNamelessItem(t *testing.T) {
	_, err := Parse([]byte("p:\n  shell:\n    - commands: [ls]\n"))
	if err == nil {
		t.Fatalf("expected an error for a list item without a name")
	}
	if !strings.Contains(err.Error(), "has no name") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"empty":        "",
		"scalar root":  "42",
		"scalar body":  "p: hello",
		"bad attempts": "p:\n  core:\n    execution_defaults:\n      max_attempts: 0\n",
		"scalar sect":  "p:\n  shell: run-it\n",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte(samplePipeline), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	def, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if def.Name != "deploy" {
		t.Errorf("Name = %q, want deploy", def.Name)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Errorf("expected an error for a missing file")
	}
}
