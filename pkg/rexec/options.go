package rexec

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/nicklasfrahm/rcmd/pkg/sshx"
)

// Options contains the configuration for an operation.
type Options struct {
	Logger        *zerolog.Logger
	SSHProxy      *sshx.Config
	Timeout       time.Duration
	Retries       uint
	RetryInterval time.Duration
}

// Option applies a configuration option
// for the execution of an operation.
type Option func(options *Options) error

// Apply applies the option functions to the current set of options.
func (o *Options) Apply(options ...Option) (*Options, error) {
	for _, option := range options {
		if err := option(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// GetDefaultOptions returns the default options
// for all operations of this library.
func GetDefaultOptions() *Options {
	logger := zerolog.Nop()

	return &Options{
		SSHProxy:      nil,
		Timeout:       sshx.DefaultTimeout,
		Logger:        &logger,
		Retries:       3,
		RetryInterval: 2 * time.Second,
	}
}

// WithLogger allows to use a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(options *Options) error {
		if logger != nil {
			options.Logger = logger
		}
		return nil
	}
}

// WithSSHProxy configures an SSH bastion host.
func WithSSHProxy(sshProxy *sshx.Config) Option {
	return func(options *Options) error {
		options.SSHProxy = sshProxy
		return nil
	}
}

// WithTimeout sets the connection timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(options *Options) error {
		options.Timeout = timeout
		return nil
	}
}

// WithRetries configures how often and how fast a failed
// connection attempt is repeated.
func WithRetries(retries uint, interval time.Duration) Option {
	return func(options *Options) error {
		if retries == 0 {
			return errors.New("at least one connection attempt is required")
		}
		options.Retries = retries
		options.RetryInterval = interval
		return nil
	}
}
