package engine

import (
	"reflect"
	"testing"

	"github.com/pipewright/pipewright/pkg/telemetry"
)

func testLogger(t *testing.T) *telemetry.Logger {
	t.Helper()
	cfg := telemetry.DefaultConfig().Logging
	cfg.Level = "error"
	logger, err := telemetry.NewLogger(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return logger
}

func newTestState(t *testing.T) *PipelineState {
	t.Helper()
	return NewPipelineState(testLogger(t), nil)
}

func TestExtensionStateLifecycle(t *testing.T) {
	state := newTestState(t)

	if got := state.ExtensionState("missing"); got != "" {
		t.Errorf("expected empty state for unknown extension, got %q", got)
	}

	for _, s := range []ExecutionState{StateRegistered, StateStarting, StateSuccess, StateCleaned} {
		state.SetExtensionState("shell", s)
		if got := state.ExtensionState("shell"); got != s {
			t.Errorf("state = %q, want %q", got, s)
		}
	}
}

func TestExtensionDataRoundTrip(t *testing.T) {
	state := newTestState(t)

	if got := state.ExtensionData("missing"); got != nil {
		t.Errorf("expected nil for unknown extension data, got %v", got)
	}

	data := map[string]interface{}{"result": "ok"}
	state.StoreExtensionData("shell", data)
	if got := state.ExtensionData("shell"); !reflect.DeepEqual(got, data) {
		t.Errorf("ExtensionData = %v, want %v", got, data)
	}

	all := state.AllExtensionData()
	all["shell"]["result"] = "tampered"
	if got := state.ExtensionData("shell")["result"]; got != "ok" {
		t.Errorf("mutating the returned copy leaked into the store: %v", got)
	}
}

func TestResolveSecretReference(t *testing.T) {
	state := newTestState(t)
	state.LoadSecrets(map[string]interface{}{
		"vaults": map[string]interface{}{
			"main": map[string]interface{}{"api_key": "s3cret"},
		},
	})

	resolved := state.ResolveReferences(map[string]interface{}{
		"key":     "_secret:main:api_key",
		"plain":   "untouched",
		"missing": "_secret:main:absent",
		"novault": "_secret:other:api_key",
	})

	if resolved["key"] != "s3cret" {
		t.Errorf("secret = %v, want s3cret", resolved["key"])
	}
	if resolved["plain"] != "untouched" {
		t.Errorf("plain string changed: %v", resolved["plain"])
	}
	if resolved["missing"] != nil {
		t.Errorf("missing key should resolve to nil, got %v", resolved["missing"])
	}
	if resolved["novault"] != nil {
		t.Errorf("missing vault should resolve to nil, got %v", resolved["novault"])
	}
}

func TestLoadSecretsFromItemSection(t *testing.T) {
	state := newTestState(t)
	state.LoadSecrets(map[string]interface{}{
		"main": map[string]interface{}{
			"name": "main",
			"vaults": map[string]interface{}{
				"ci": map[string]interface{}{"token": "abc"},
			},
		},
	})

	resolved := state.ResolveReferences(map[string]interface{}{
		"token": "_secret:ci:token",
	})
	if resolved["token"] != "abc" {
		t.Errorf("token = %v, want abc", resolved["token"])
	}
}

type stubSecretSource struct {
	vaults map[string]map[string]interface{}
}

func (s *stubSecretSource) LoadVault(vault string) (map[string]interface{}, bool) {
	v, ok := s.vaults[vault]
	return v, ok
}

func TestResolveSecretFromRegisteredSource(t *testing.T) {
	state := newTestState(t)
	state.RegisterSecretSource(&stubSecretSource{
		vaults: map[string]map[string]interface{}{
			"env": {"password": "hunter2"},
		},
	})

	resolved := state.ResolveReferences(map[string]interface{}{
		"password": "_secret:env:password",
	})
	if resolved["password"] != "hunter2" {
		t.Errorf("password = %v, want hunter2", resolved["password"])
	}
}

func TestResolveGroupReference(t *testing.T) {
	state := newTestState(t)
	state.StoreExtensionData("infra", map[string]interface{}{
		"prod.web": map[string]interface{}{
			"node1": map[string]interface{}{"ip": "10.0.0.1"},
		},
	})

	resolved := state.ResolveReferences(map[string]interface{}{
		"node":    "_group:infra:prod:web:node1",
		"group":   "_group:infra:prod:web",
		"badnode": "_group:infra:prod:web:node9",
		"badref":  "_group:infra:prod:db",
	})

	node, ok := resolved["node"].(map[string]interface{})
	if !ok || node["ip"] != "10.0.0.1" {
		t.Errorf("node = %v, want the node1 map", resolved["node"])
	}
	group, ok := resolved["group"].(map[string]interface{})
	if !ok {
		t.Fatalf("group = %v, want the full group map", resolved["group"])
	}
	if _, ok := group["node1"]; !ok {
		t.Errorf("group map missing node1: %v", group)
	}
	if resolved["badnode"] != nil {
		t.Errorf("missing node should resolve to nil, got %v", resolved["badnode"])
	}
	if resolved["badref"] != nil {
		t.Errorf("missing group should resolve to nil, got %v", resolved["badref"])
	}
}

func TestResolveGroupScalarData(t *testing.T) {
	state := newTestState(t)
	state.StoreExtensionData("infra", map[string]interface{}{
		"prod.count": 3,
	})

	resolved := state.ResolveReferences(map[string]interface{}{
		"count": "_group:infra:prod:count",
	})
	if resolved["count"] != 3 {
		t.Errorf("count = %v, want 3", resolved["count"])
	}
}

func TestResolveReferencesNested(t *testing.T) {
	state := newTestState(t)
	state.LoadSecrets(map[string]interface{}{
		"vaults": map[string]interface{}{
			"main": map[string]interface{}{"token": "abc"},
		},
	})

	resolved := state.ResolveReferences(map[string]interface{}{
		"outer": map[string]interface{}{
			"list": []interface{}{"_secret:main:token", "plain", 7},
		},
	})

	outer := resolved["outer"].(map[string]interface{})
	list := outer["list"].([]interface{})
	if list[0] != "abc" || list[1] != "plain" || list[2] != 7 {
		t.Errorf("nested resolution produced %v", list)
	}
}

func TestResolveReferencesSinglePass(t *testing.T) {
	state := newTestState(t)
	state.LoadSecrets(map[string]interface{}{
		"vaults": map[string]interface{}{
			"main": map[string]interface{}{
				// The secret value itself looks like a reference; it must
				// come back verbatim, never re-resolved.
				"indirect": "_secret:main:other",
				"other":    "real",
			},
		},
	})

	resolved := state.ResolveReferences(map[string]interface{}{
		"v": "_secret:main:indirect",
	})
	if resolved["v"] != "_secret:main:other" {
		t.Errorf("expected single-pass resolution, got %v", resolved["v"])
	}

	again := state.ResolveReferences(resolved)
	// A second explicit pass does resolve it; the point is one call is one
	// pass.
	if again["v"] != "real" {
		t.Errorf("second pass = %v, want real", again["v"])
	}
}
