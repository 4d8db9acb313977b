package shell

import (
	"strings"
	"testing"
)

func TestRemoteCommand(t *testing.T) {
	cases := []struct {
		name string
		set  CommandSet
		want string
	}{
		{
			name: "plain",
			set:  CommandSet{},
			want: "uptime",
		},
		{
			name: "environment sorted",
			set: CommandSet{Environment: map[string]string{
				"ZONE": "eu-west",
				"APP":  "api",
			}},
			want: "export APP='api'; export ZONE='eu-west'; uptime",
		},
		{
			name: "working directory",
			set:  CommandSet{WorkingDir: "/srv/app"},
			want: "cd '/srv/app' && uptime",
		},
		{
			name: "environment and working directory",
			set: CommandSet{
				Environment: map[string]string{"APP": "api"},
				WorkingDir:  "/srv/app",
			},
			want: "export APP='api'; cd '/srv/app' && uptime",
		},
		{
			name: "quoted value",
			set:  CommandSet{Environment: map[string]string{"MSG": "it's done"}},
			want: `export MSG='it'\''s done'; uptime`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := remoteCommand(tc.set, "uptime"); got != tc.want {
				t.Errorf("remoteCommand = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseConfigRemote(t *testing.T) {
	sets, err := parseConfig(map[string]interface{}{
		"provision": map[string]interface{}{
			"commands": []interface{}{"uptime"},
			"remote": map[string]interface{}{
				"host":     "db1.internal",
				"port":     2222,
				"user":     "deploy",
				"password": "pw",
			},
		},
	})
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}
	if len(sets) != 1 {
		t.Fatalf("expected 1 set, got %d", len(sets))
	}
	remote := sets[0].Remote
	if remote == nil {
		t.Fatal("expected remote config")
	}
	if remote.Host != "db1.internal" || remote.Port != 2222 || remote.User != "deploy" {
		t.Errorf("unexpected remote config: %+v", remote)
	}
}

func TestValidateConfigRemote(t *testing.T) {
	ext, _ := newTestExtension(t)

	err := ext.ValidateConfig(map[string]interface{}{
		"provision": map[string]interface{}{
			"commands": []interface{}{"uptime"},
			"remote":   map[string]interface{}{"host": "db1"},
		},
	})
	if err == nil || !strings.Contains(err.Error(), "remote user is required") {
		t.Fatalf("expected remote user error, got %v", err)
	}

	err = ext.ValidateConfig(map[string]interface{}{
		"provision": map[string]interface{}{
			"commands": []interface{}{"uptime"},
			"remote": map[string]interface{}{
				"host":     "db1",
				"user":     "deploy",
				"password": "pw",
			},
		},
	})
	if err != nil {
		t.Fatalf("ValidateConfig failed: %v", err)
	}
}

func TestShellQuote(t *testing.T) {
	if got := shellQuote("plain"); got != "'plain'" {
		t.Errorf("shellQuote = %q", got)
	}
	if got := shellQuote("it's"); got != `'it'\''s'` {
		t.Errorf("shellQuote = %q", got)
	}
}
