package sshx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/user"
	"path"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// ErrNoAuthMethod is returned when a configuration has neither a key
// nor a password.
var ErrNoAuthMethod = errors.New("no authentication method specified")

// ErrFingerprintMismatch is returned when the host key of the server
// does not match the configured fingerprint.
var ErrFingerprintMismatch = errors.New("fingerprint mismatch")

// Config is a flat configuration for an SSH connection.
type Config struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	KeyFile     string `yaml:"key-file"`
	Key         string `yaml:"key"`
	Passphrase  string `yaml:"passphrase"`
	Fingerprint string `yaml:"fingerprint"`
}

// Address returns the host and port to dial.
func (config *Config) Address() string {
	return net.JoinHostPort(config.Host, fmt.Sprint(config.Port))
}

// Client is an augmented SSH client.
type Client struct {
	*Options
	*ssh.Client
}

// NewClient creates a new SSH client based on an  SSH configuration
// and connects to it.
func NewClient(config *Config, options ...Option) (*Client, error) {
	opts, err := GetDefaultOptions().Apply(options...)
	if err != nil {
		return nil, err
	}

	// Create a new client.
	client := &Client{
		Options: opts,
	}

	// Set default connection options.
	if config.Port == 0 {
		config.Port = 22
	}
	if config.User == "" {
		config.User = "root"
	}

	normalizedConfig, err := client.normalizeConfig(config)
	if err != nil {
		return nil, err
	}
	address := config.Address()

	// Record host key errors so that callers can match them.
	var hostKeyErr error
	verifyHostKey := normalizedConfig.HostKeyCallback
	normalizedConfig.HostKeyCallback = func(hostname string, remote net.Addr, pubKey ssh.PublicKey) error {
		hostKeyErr = verifyHostKey(hostname, remote, pubKey)
		return hostKeyErr
	}

	if client.Proxy != nil {
		// Create a TCP connection from the proxy host to the target.
		netConn, err := client.Proxy.Client.Dial("tcp", address)
		if err != nil {
			return nil, err
		}

		targetConn, channel, req, err := ssh.NewClientConn(netConn, address, normalizedConfig)
		if err != nil {
			netConn.Close()
			return nil, errors.Join(hostKeyErr, err)
		}

		client.Client = ssh.NewClient(targetConn, channel, req)
	} else {
		if client.Client, err = ssh.Dial("tcp", address, normalizedConfig); err != nil {
			return nil, errors.Join(hostKeyErr, err)
		}
	}

	return client, nil
}

// Do runs a command in a new session and waits for it to finish. A
// command that exits with a non-zero status returns an *ssh.ExitError.
// Cancelling the context closes the session.
func (client *Client) Do(ctx context.Context, cmd *Cmd) error {
	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	session.Stdin = cmd.Stdin
	session.Stdout = cmd.Stdout
	session.Stderr = cmd.Stderr

	line := cmd.String()
	client.Logger.Debug().Str("command", line).Msg("Running command")

	done := make(chan error, 1)
	go func() {
		done <- session.Run(line)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		// Not every server honors signals, closing the session
		// unblocks Run in any case.
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		return ctx.Err()
	}
}

// Upload writes the content of reader to a file on the remote host
// using SFTP. Missing parent directories are created.
func (client *Client) Upload(remotePath string, reader io.Reader) error {
	sftpClient, err := sftp.NewClient(client.Client)
	if err != nil {
		return fmt.Errorf("failed to start sftp: %w", err)
	}
	defer sftpClient.Close()

	if err := sftpClient.MkdirAll(path.Dir(remotePath)); err != nil {
		return err
	}

	file, err := sftpClient.Create(remotePath)
	if err != nil {
		return err
	}
	defer file.Close()

	written, err := io.Copy(file, reader)
	if err != nil {
		return err
	}

	client.Logger.Debug().Str("path", remotePath).Int64("bytes", written).Msg("Uploaded file")

	return nil
}

// normalizeConfig creates a new client config that is compatible with the standard library.
func (client *Client) normalizeConfig(config *Config) (*ssh.ClientConfig, error) {
	// Load the private key. A key that is specified directly takes
	// precedence over a key file.
	key := config.Key
	if key == "" && config.KeyFile != "" {
		// Resolve the home directory if necessary.
		if config.KeyFile[0] == '~' {
			userInfo, err := user.Current()
			if err != nil {
				return nil, err
			}
			config.KeyFile = userInfo.HomeDir + config.KeyFile[1:]
		}

		keyBytes, err := os.ReadFile(config.KeyFile)
		if err != nil {
			return nil, err
		}
		key = string(keyBytes)
	}

	// Configure the authentication method, which may either be a
	// password, a private key or an encrypted private key. Please
	// note that a private key will always take precedence over a
	// password.
	var authMethod ssh.AuthMethod
	if key != "" {
		// Use passphrase to decrypt the private key.
		if config.Passphrase != "" {
			signer, err := ssh.ParsePrivateKeyWithPassphrase([]byte(key), []byte(config.Passphrase))
			if err != nil {
				return nil, err
			}
			authMethod = ssh.PublicKeys(signer)
		} else {
			signer, err := ssh.ParsePrivateKey([]byte(key))
			if err != nil {
				return nil, err
			}
			authMethod = ssh.PublicKeys(signer)
		}
	} else if config.Password != "" {
		// Fall back to password authentication.
		authMethod = ssh.Password(config.Password)
		client.Logger.Warn().Msg("Using password authentication is insecure!")
		client.Logger.Warn().Msg("Please consider using public key authentication!")
	} else {
		return nil, ErrNoAuthMethod
	}

	// Configure host key verification.
	var hostKeyCallback ssh.HostKeyCallback
	if config.Fingerprint != "" {
		hostKeyCallback = func(hostname string, remote net.Addr, pubKey ssh.PublicKey) error {
			fingerprint := ssh.FingerprintSHA256(pubKey)
			if config.Fingerprint != fingerprint {
				return fmt.Errorf("%w: server fingerprint: %s", ErrFingerprintMismatch, fingerprint)
			}
			return nil
		}
	} else {
		client.Logger.Warn().Msg("Skipping host key verification is insecure!")
		client.Logger.Warn().Msg("This allows for person-in-the-middle attacks!")
		client.Logger.Warn().Msg("Please consider using fingerprint verification!")
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	return &ssh.ClientConfig{
		Auth:            []ssh.AuthMethod{authMethod},
		HostKeyCallback: hostKeyCallback,
		User:            config.User,
		Timeout:         client.Timeout,
	}, nil
}
