package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/pipewright/pipewright/pkg/telemetry"
)

// Result is the outcome of one remote command.
type Result struct {
	// Output is the combined stdout and stderr, trailing newlines removed.
	Output string

	// ExitCode is the remote exit status, or -1 when the command did not
	// report one.
	ExitCode int

	// Duration is the wall time of the execution.
	Duration time.Duration
}

// Error wraps a transport failure with the operation that produced it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "ssh " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Client executes commands and transfers files over one SSH connection.
// It is safe for concurrent use.
type Client struct {
	config *Config
	logger *telemetry.Logger

	mu   sync.Mutex
	conn *ssh.Client
}

// Dial validates the configuration and connects to the remote host. The
// context bounds connection establishment only.
func Dial(ctx context.Context, config *Config, logger *telemetry.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, &Error{Op: "dial", Err: err}
	}
	clientConfig, err := config.clientConfig()
	if err != nil {
		return nil, &Error{Op: "dial", Err: err}
	}

	address := config.Address()
	logger = logger.WithField("remote", address)
	logger.Debugf("Connecting to %s", address)

	connCh := make(chan *ssh.Client, 1)
	errCh := make(chan error, 1)
	go func() {
		conn, err := ssh.Dial("tcp", address, clientConfig)
		if err != nil {
			errCh <- err
			return
		}
		connCh <- conn
	}()

	select {
	case <-ctx.Done():
		// Close the connection if the dial wins the race later.
		go func() {
			select {
			case conn := <-connCh:
				conn.Close()
			case <-errCh:
			}
		}()
		return nil, &Error{Op: "dial", Err: ctx.Err()}
	case err := <-errCh:
		return nil, &Error{Op: "dial", Err: err}
	case conn := <-connCh:
		logger.Infof("Connected to %s as %s", address, config.User)
		return &Client{config: config, logger: logger, conn: conn}, nil
	}
}

// Close shuts the connection down. Further calls are no-ops.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Run executes one command in the remote user's shell and captures its
// combined output. A non-zero exit status is returned as an error with the
// status recorded in the Result.
func (c *Client) Run(ctx context.Context, command string) (Result, error) {
	started := time.Now()

	conn, err := c.connection("run")
	if err != nil {
		return Result{ExitCode: -1}, err
	}
	session, err := conn.NewSession()
	if err != nil {
		return Result{ExitCode: -1}, &Error{Op: "run", Err: fmt.Errorf("failed to open session: %w", err)}
	}
	defer session.Close()

	var output lockedBuffer
	session.Stdout = &output
	session.Stderr = &output

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		runErr = ctx.Err()
	case runErr = <-done:
	}

	result := Result{
		Output:   strings.TrimRight(output.String(), "\n"),
		Duration: time.Since(started),
	}
	c.logger.Debugf("Ran %q in %s", command, result.Duration)
	if runErr == nil {
		return result, nil
	}

	result.ExitCode = -1
	var exitErr *ssh.ExitError
	if errors.As(runErr, &exitErr) {
		result.ExitCode = exitErr.ExitStatus()
	}
	return result, &Error{Op: "run", Err: runErr}
}

// Upload copies a local file to the remote host over SFTP and applies the
// given mode.
func (c *Client) Upload(ctx context.Context, localPath, remotePath string, mode os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return &Error{Op: "upload", Err: err}
	}
	client, err := c.sftpClient("upload")
	if err != nil {
		return err
	}
	defer client.Close()

	local, err := os.Open(localPath)
	if err != nil {
		return &Error{Op: "upload", Err: err}
	}
	defer local.Close()

	remote, err := client.Create(remotePath)
	if err != nil {
		return &Error{Op: "upload", Err: err}
	}
	if _, err := io.Copy(remote, local); err != nil {
		remote.Close()
		return &Error{Op: "upload", Err: err}
	}
	if err := remote.Close(); err != nil {
		return &Error{Op: "upload", Err: err}
	}
	if err := client.Chmod(remotePath, mode); err != nil {
		return &Error{Op: "upload", Err: err}
	}
	c.logger.Debugf("Uploaded %s to %s", localPath, remotePath)
	return nil
}

// Remove deletes a file on the remote host.
func (c *Client) Remove(remotePath string) error {
	client, err := c.sftpClient("remove")
	if err != nil {
		return err
	}
	defer client.Close()
	if err := client.Remove(remotePath); err != nil {
		return &Error{Op: "remove", Err: err}
	}
	return nil
}

func (c *Client) sftpClient(op string) (*sftp.Client, error) {
	conn, err := c.connection(op)
	if err != nil {
		return nil, err
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		return nil, &Error{Op: op, Err: fmt.Errorf("failed to start sftp: %w", err)}
	}
	return client, nil
}

func (c *Client) connection(op string) (*ssh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, &Error{Op: op, Err: fmt.Errorf("not connected")}
	}
	return c.conn, nil
}

// lockedBuffer serializes the stdout and stderr streams into one capture.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
