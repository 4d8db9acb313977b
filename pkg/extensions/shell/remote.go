package shell

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pipewright/pipewright/pkg/transports/ssh"
)

// remoteSession runs one command set on a remote host over a single SSH
// connection.
type remoteSession struct {
	set    CommandSet
	client *ssh.Client
	staged []string
}

func (e *Extension) connectRemote(set CommandSet) (*remoteSession, error) {
	ctx, cancel := context.WithTimeout(context.Background(), set.Remote.ConnectTimeout())
	defer cancel()

	client, err := ssh.Dial(ctx, set.Remote, e.Logger)
	if err != nil {
		return nil, fmt.Errorf("command set %s: %w", set.Name, err)
	}
	return &remoteSession{set: set, client: client}, nil
}

// stageScripts uploads every script and returns the remote paths to run.
func (s *remoteSession) stageScripts(scripts []string) ([]string, error) {
	remote := make([]string, 0, len(scripts))
	for _, script := range scripts {
		target := path.Join("/tmp", fmt.Sprintf("pipewright-%s-%s", s.set.Name, filepath.Base(script)))
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout())
		err := s.client.Upload(ctx, script, target, 0o755)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("command set %s: failed to stage script %s: %w", s.set.Name, script, err)
		}
		s.staged = append(s.staged, target)
		remote = append(remote, target)
	}
	return remote, nil
}

func (s *remoteSession) run(command string) (string, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout())
	defer cancel()

	result, err := s.client.Run(ctx, remoteCommand(s.set, command))
	return result.Output, result.ExitCode, err
}

func (s *remoteSession) timeout() time.Duration {
	if s.set.TimeoutSeconds > 0 {
		return time.Duration(s.set.TimeoutSeconds) * time.Second
	}
	return defaultTimeout
}

func (s *remoteSession) close() {
	for _, target := range s.staged {
		_ = s.client.Remove(target)
	}
	_ = s.client.Close()
}

// remoteCommand wraps a command with the environment and working directory
// of its set for execution by the remote shell.
func remoteCommand(set CommandSet, command string) string {
	if len(set.Environment) == 0 && set.WorkingDir == "" {
		return command
	}

	var b strings.Builder
	keys := make([]string, 0, len(set.Environment))
	for k := range set.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "export %s=%s; ", k, shellQuote(set.Environment[k]))
	}
	if set.WorkingDir != "" {
		fmt.Fprintf(&b, "cd %s && ", shellQuote(set.WorkingDir))
	}
	b.WriteString(command)
	return b.String()
}

// shellQuote single-quotes a value for the remote shell.
func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}
