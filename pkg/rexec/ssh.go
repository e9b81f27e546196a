package rexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/nicklasfrahm/rcmd/pkg/shell"
	"github.com/nicklasfrahm/rcmd/pkg/sshx"
)

// SSH is a runner that executes commands on a remote host via SSH.
// Commands are sent as a quoted command line to the login shell of
// the remote user.
type SSH struct {
	Logger        *zerolog.Logger
	Proxy         *sshx.Config
	Target        *sshx.Config
	Timeout       time.Duration
	Retries       uint
	RetryInterval time.Duration

	proxyClient  *sshx.Client
	targetClient *sshx.Client
}

// NewSSH returns a new SSH-based runner.
func NewSSH(target *sshx.Config, options ...Option) (*SSH, error) {
	opts, err := GetDefaultOptions().Apply(options...)
	if err != nil {
		return nil, err
	}

	if target.Port == 0 {
		target.Port = 22
	}
	if target.User == "" {
		target.User = "root"
	}

	return &SSH{
		Logger:        opts.Logger,
		Proxy:         opts.SSHProxy,
		Target:        target,
		Timeout:       opts.Timeout,
		Retries:       opts.Retries,
		RetryInterval: opts.RetryInterval,
	}, nil
}

// Connect establishes a connection to the SSH host. Failed attempts
// are retried, except for configuration errors.
func (runner *SSH) Connect(ctx context.Context) error {
	if runner.Proxy != nil {
		client, err := runner.dial(ctx, runner.Proxy)
		if err != nil {
			return err
		}
		runner.proxyClient = client
	}

	client, err := runner.dial(ctx, runner.Target, sshx.WithProxy(runner.proxyClient))
	if err != nil {
		return errors.Join(err, runner.Disconnect())
	}
	runner.targetClient = client

	return nil
}

func (runner *SSH) dial(ctx context.Context, config *sshx.Config, options ...sshx.Option) (*sshx.Client, error) {
	options = append(options,
		sshx.WithLogger(runner.Logger),
		sshx.WithTimeout(runner.Timeout),
	)

	return backoff.Retry(ctx, func() (*sshx.Client, error) {
		client, err := sshx.NewClient(config, options...)
		if err != nil {
			if errors.Is(err, sshx.ErrNoAuthMethod) || errors.Is(err, sshx.ErrFingerprintMismatch) || errors.Is(err, fs.ErrNotExist) {
				return nil, backoff.Permanent(err)
			}
			runner.Logger.Debug().Err(err).Str("address", config.Address()).Msg("Connection attempt failed")
			return nil, err
		}
		return client, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(runner.RetryInterval)),
		backoff.WithMaxTries(runner.Retries),
	)
}

// Run executes the command on the remote host.
func (runner *SSH) Run(ctx context.Context, cmd shell.Command, options ...ExecOption) (*Result, error) {
	opts, err := GetDefaultExecOptions().Apply(options...)
	if err != nil {
		return nil, err
	}

	if runner.targetClient == nil {
		return nil, ErrNotConnected
	}

	var stdout, stderr bytes.Buffer
	remote := prepare(cmd, opts)
	remote.Stdout = &stdout
	remote.Stderr = &stderr

	status := 0
	if err := runner.targetClient.Do(ctx, remote); err != nil {
		var exitErr *ssh.ExitError
		if !errors.As(err, &exitErr) {
			return nil, err
		}
		status = exitErr.ExitStatus()
	}

	runner.Logger.Debug().Stringer("command", cmd).Int("status", status).Msg("Command finished")

	return finish(cmd, stdout.String(), stderr.String(), status, opts)
}

// Upload writes a file to the remote host via SFTP.
func (runner *SSH) Upload(ctx context.Context, path string, reader io.Reader) error {
	if runner.targetClient == nil {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return runner.targetClient.Upload(path, reader)
}

// Disconnect closes the SSH connections in reverse order to how they were opened.
func (runner *SSH) Disconnect() error {
	var errs []error
	if runner.targetClient != nil {
		if err := runner.targetClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
		runner.targetClient = nil
	}

	if runner.proxyClient != nil {
		if err := runner.proxyClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close proxy connection: %w", err))
		}
		runner.proxyClient = nil
	}

	return errors.Join(errs...)
}

func (runner *SSH) String() string {
	return "ssh://" + runner.Target.User + "@" + runner.Target.Address()
}
