package engine

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
	Concurrency   int
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
		Concurrency:   0,
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
func WithSSHProxy(proxy *sshx.Config) Option {
	return func(options *Options) error {
		options.SSHProxy = proxy
		return nil
	}
}

// WithTimeout allows to set a custom timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(options *Options) error {
		if timeout < 0 {
			return errors.New("timeout must not be negative")
		}
		options.Timeout = timeout
		return nil
	}
}

// WithRetries configures how often a failed connection attempt is
// repeated.
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

// WithConcurrency limits how many hosts are processed at the same
// time. Zero means no limit.
func WithConcurrency(concurrency int) Option {
	return func(options *Options) error {
		if concurrency < 0 {
			return errors.New("concurrency must not be negative")
		}
		options.Concurrency = concurrency
		return nil
	}
}
