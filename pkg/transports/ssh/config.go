package ssh

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	defaultPort           = 22
	defaultConnectTimeout = 30 * time.Second
)

// Config describes how to reach a remote host. It is decoded straight from
// the remote section of a command set.
type Config struct {
	// Host is the remote hostname or IP address.
	Host string `yaml:"host"`

	// Port is the SSH port. Zero means 22.
	Port int `yaml:"port"`

	// User is the login name on the remote host.
	User string `yaml:"user"`

	// Password enables password authentication when set. Key authentication
	// is used otherwise.
	Password string `yaml:"password"`

	// PrivateKeyPath points at the key used when Password is empty. When
	// also empty, the usual keys under ~/.ssh are tried.
	PrivateKeyPath string `yaml:"private_key"`

	// PrivateKeyPassphrase unlocks an encrypted private key.
	PrivateKeyPassphrase string `yaml:"passphrase"`

	// KnownHostsPath is the known_hosts file used to verify the host key.
	// Ignored unless StrictHostKeys is set.
	KnownHostsPath string `yaml:"known_hosts"`

	// StrictHostKeys rejects hosts whose key is not in the known_hosts file.
	StrictHostKeys bool `yaml:"strict_host_keys"`

	// ConnectTimeoutSeconds bounds connection establishment. Zero means 30.
	ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds"`
}

// Validate checks the configuration, including that a usable private key
// exists when password authentication is not configured.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("remote host is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid remote port: %d", c.Port)
	}
	if c.User == "" {
		return fmt.Errorf("remote user is required")
	}
	if c.ConnectTimeoutSeconds < 0 {
		return fmt.Errorf("connect timeout must not be negative")
	}
	if c.Password == "" {
		if _, err := c.keyPath(); err != nil {
			return err
		}
	}
	return nil
}

// Address returns the host:port dial target.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.port())
}

// ConnectTimeout returns the configured connection timeout or the default.
func (c *Config) ConnectTimeout() time.Duration {
	if c.ConnectTimeoutSeconds > 0 {
		return time.Duration(c.ConnectTimeoutSeconds) * time.Second
	}
	return defaultConnectTimeout
}

func (c *Config) port() int {
	if c.Port != 0 {
		return c.Port
	}
	return defaultPort
}

// keyPath resolves the private key file, falling back to the default key
// locations when none is configured.
func (c *Config) keyPath() (string, error) {
	if c.PrivateKeyPath != "" {
		if _, err := os.Stat(c.PrivateKeyPath); err != nil {
			return "", fmt.Errorf("private key not found: %s", c.PrivateKeyPath)
		}
		return c.PrivateKeyPath, nil
	}
	home := os.Getenv("HOME")
	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		candidate := filepath.Join(home, ".ssh", name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no usable private key for %s@%s", c.User, c.Host)
}

// clientConfig builds the ssh.ClientConfig for this target.
func (c *Config) clientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if c.Password != "" {
		auth = append(auth, ssh.Password(c.Password))
		// Many servers present the password prompt through
		// keyboard-interactive instead of plain password auth.
		auth = append(auth, ssh.KeyboardInteractive(
			func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = c.Password
				}
				return answers, nil
			},
		))
	} else {
		path, err := c.keyPath()
		if err != nil {
			return nil, err
		}
		keyBytes, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key %s: %w", path, err)
		}
		var signer ssh.Signer
		if c.PrivateKeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(c.PrivateKeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyBytes)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key %s: %w", path, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}

	hostKeys := ssh.InsecureIgnoreHostKey()
	if c.StrictHostKeys {
		path := c.KnownHostsPath
		if path == "" {
			path = filepath.Join(os.Getenv("HOME"), ".ssh", "known_hosts")
		}
		callback, err := knownhosts.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts %s: %w", path, err)
		}
		hostKeys = callback
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         c.ConnectTimeout(),
	}, nil
}
