package shell

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/pipewright/pipewright/pkg/engine"
	"github.com/pipewright/pipewright/pkg/transports/ssh"
)

const defaultTimeout = 300 * time.Second

var validate = validator.New()

// CommandSet is one named group of shell work inside the extension's
// configuration.
type CommandSet struct {
	// Name identifies the command set; exports are prefixed with it.
	Name string `yaml:"name" validate:"required"`

	// Type selects the interpreter, such as bash or zsh. Empty means sh.
	Type string `yaml:"type"`

	// Commands are executed in order with the selected interpreter.
	Commands []string `yaml:"commands" validate:"required_without=Scripts,dive,required"`

	// Scripts are local paths or http(s) URLs of scripts to run after the
	// commands. Remote scripts are downloaded to a temporary file first.
	Scripts []string `yaml:"scripts" validate:"required_without=Commands,dive,required"`

	// Environment is added to the process environment.
	Environment map[string]string `yaml:"environment"`

	// WorkingDir is the working directory for every command.
	WorkingDir string `yaml:"working_dir"`

	// TimeoutSeconds bounds each command. Zero means the default timeout.
	TimeoutSeconds int `yaml:"timeout_seconds" validate:"gte=0"`

	// Remote runs the command set on another host over SSH instead of
	// locally. Scripts are uploaded first; commands run in the login shell
	// of the remote user, so Type has no effect there.
	Remote *ssh.Config `yaml:"remote"`
}

// Extension runs shell commands and scripts, records each execution as a
// resource, and exports the captured output.
type Extension struct {
	engine.Base

	httpClient *http.Client
}

// New creates the shell extension.
func New() engine.Extension {
	return &Extension{
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// ValidateConfig checks every command set before anything executes.
func (e *Extension) ValidateConfig(config map[string]interface{}) error {
	sets, err := parseConfig(config)
	if err != nil {
		return err
	}
	if len(sets) == 0 {
		return fmt.Errorf("shell configuration has no command sets")
	}
	for _, set := range sets {
		if err := validate.Struct(set); err != nil {
			return fmt.Errorf("invalid command set %s: %w", set.Name, err)
		}
		if set.Remote != nil {
			if err := set.Remote.Validate(); err != nil {
				return fmt.Errorf("invalid command set %s: %w", set.Name, err)
			}
		}
	}
	return nil
}

// Execute runs every command set in name order. The first failing command
// stops the run of this extension; its output is exported under
// <name>_error before the error is returned.
func (e *Extension) Execute(config map[string]interface{}) error {
	sets, err := parseConfig(config)
	if err != nil {
		return err
	}

	for _, set := range sets {
		if err := e.runCommandSet(set); err != nil {
			return err
		}
	}
	return nil
}

func (e *Extension) runCommandSet(set CommandSet) error {
	logger := e.Logger.WithField("command_set", set.Name)
	logger.Infof("Running command set: %s", set.Name)

	scripts, cleanup, err := e.materializeScripts(set)
	if err != nil {
		return err
	}
	defer cleanup()

	execute := func(command string) (string, int, error) {
		return e.runCommand(set, command)
	}
	if set.Remote != nil {
		session, err := e.connectRemote(set)
		if err != nil {
			return err
		}
		defer session.close()
		if scripts, err = session.stageScripts(scripts); err != nil {
			return err
		}
		execute = session.run
	}

	var results []map[string]interface{}
	run := func(command string) error {
		output, exitCode, err := execute(command)
		if err != nil {
			logger.WithError(err).Errorf("Command failed: %s", command)
			exportErr := e.ExportOutput(set.Name+"_error", map[string]interface{}{
				"command":   command,
				"output":    output,
				"exit_code": exitCode,
			}, nil)
			if exportErr != nil {
				logger.WithError(exportErr).Warn("Failed to export command error")
			}
			return fmt.Errorf("command set %s: command %q failed: %w", set.Name, command, err)
		}
		results = append(results, map[string]interface{}{
			"command":   command,
			"output":    output,
			"exit_code": exitCode,
		})
		return nil
	}

	for _, command := range set.Commands {
		if err := run(command); err != nil {
			return err
		}
	}
	for _, script := range scripts {
		if err := run(script); err != nil {
			return err
		}
	}

	props := map[string]interface{}{
		"interpreter":   interpreter(set),
		"command_count": len(results),
	}
	if set.Remote != nil {
		props["remote_host"] = set.Remote.Host
	}
	if _, err := e.CreateResource("shell:command:"+set.Name, set.Name, props, nil, nil); err != nil {
		return err
	}
	return e.ExportOutput(set.Name+"_output", map[string]interface{}{
		"results": results,
	}, nil)
}

// runCommand executes one command line through the interpreter and returns
// the combined output and exit code.
func (e *Extension) runCommand(set CommandSet, command string) (string, int, error) {
	timeout := defaultTimeout
	if set.TimeoutSeconds > 0 {
		timeout = time.Duration(set.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, interpreter(set), "-c", command)
	cmd.Dir = set.WorkingDir
	if len(set.Environment) > 0 {
		cmd.Env = os.Environ()
		for k, v := range set.Environment {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	out, err := cmd.CombinedOutput()
	output := strings.TrimRight(string(out), "\n")
	if err != nil {
		exitCode := -1
		if cmd.ProcessState != nil {
			exitCode = cmd.ProcessState.ExitCode()
		}
		return output, exitCode, err
	}
	return output, 0, nil
}

// materializeScripts turns every script reference into a runnable command.
// Remote scripts are downloaded into a temporary directory which the
// returned cleanup removes.
func (e *Extension) materializeScripts(set CommandSet) ([]string, func(), error) {
	cleanup := func() {}
	if len(set.Scripts) == 0 {
		return nil, cleanup, nil
	}

	var tmpDir string
	commands := make([]string, 0, len(set.Scripts))
	for _, script := range set.Scripts {
		if strings.HasPrefix(script, "http://") || strings.HasPrefix(script, "https://") {
			if tmpDir == "" {
				dir, err := os.MkdirTemp("", "pipewright-shell-")
				if err != nil {
					return nil, cleanup, fmt.Errorf("failed to create script directory: %w", err)
				}
				tmpDir = dir
				cleanup = func() { os.RemoveAll(dir) }
			}
			local, err := e.downloadScript(script, tmpDir)
			if err != nil {
				cleanup()
				return nil, func() {}, err
			}
			commands = append(commands, local)
			continue
		}
		commands = append(commands, script)
	}
	return commands, cleanup, nil
}

func (e *Extension) downloadScript(url, dir string) (string, error) {
	resp, err := e.httpClient.Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to download script %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download script %s: status %d", url, resp.StatusCode)
	}

	name := filepath.Base(url)
	if name == "" || name == "." || name == "/" {
		name = "script"
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return "", fmt.Errorf("failed to create script file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return "", fmt.Errorf("failed to write script %s: %w", path, err)
	}
	return path, nil
}

func interpreter(set CommandSet) string {
	if set.Type != "" {
		return set.Type
	}
	return "sh"
}

// parseConfig decodes the raw extension configuration into command sets,
// sorted by name so execution order is stable. The configuration is either
// a map of named items or a single inline command set.
func parseConfig(config map[string]interface{}) ([]CommandSet, error) {
	if looksLikeCommandSet(config) {
		set, err := decodeCommandSet(config)
		if err != nil {
			return nil, err
		}
		if set.Name == "" {
			set.Name = "default"
		}
		return []CommandSet{set}, nil
	}

	sets := make([]CommandSet, 0, len(config))
	for name, raw := range config {
		item, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("command set %s must be a mapping", name)
		}
		set, err := decodeCommandSet(item)
		if err != nil {
			return nil, fmt.Errorf("command set %s: %w", name, err)
		}
		if set.Name == "" {
			set.Name = name
		}
		sets = append(sets, set)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].Name < sets[j].Name })
	return sets, nil
}

func looksLikeCommandSet(config map[string]interface{}) bool {
	_, hasCommands := config["commands"]
	_, hasScripts := config["scripts"]
	return hasCommands || hasScripts
}

func decodeCommandSet(item map[string]interface{}) (CommandSet, error) {
	var set CommandSet
	data, err := yaml.Marshal(item)
	if err != nil {
		return set, err
	}
	if err := yaml.Unmarshal(data, &set); err != nil {
		return set, fmt.Errorf("invalid command set: %w", err)
	}
	return set, nil
}
