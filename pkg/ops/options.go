package ops

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/nicklasfrahm/rcmd/pkg/imagefile"
	"github.com/nicklasfrahm/rcmd/pkg/rexec"
	"github.com/nicklasfrahm/rcmd/pkg/sshx"
)

const (
	// Program is used to configure the name of the configuration file.
	Program = "rcmd"
)

// Options contains the configuration for an operation.
type Options struct {
	ConfigPath     string
	KubeConfigPath string
	Logger         *zerolog.Logger
	Selector       string
	Timeout        time.Duration
	Concurrency    int
	ExecOptions    []rexec.ExecOption
	FQDN           bool
	Compression    imagefile.Compression
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
		ConfigPath:  Program + ".yml",
		Logger:      &logger,
		Selector:    "all",
		Timeout:     sshx.DefaultTimeout,
		Compression: imagefile.Auto,
	}
}

// WithConfigPath overrides the default configuration path.
func WithConfigPath(configPath string) Option {
	return func(options *Options) error {
		options.ConfigPath = configPath
		return nil
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(options *Options) error {
		if logger != nil {
			options.Logger = logger
		}
		return nil
	}
}

// WithKubeConfigPath overrides the kubeconfig of the configuration.
func WithKubeConfigPath(kubeConfigPath string) Option {
	return func(options *Options) error {
		options.KubeConfigPath = kubeConfigPath
		return nil
	}
}

// WithSelector restricts the operation to the matching hosts.
func WithSelector(selector string) Option {
	return func(options *Options) error {
		options.Selector = selector
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

// WithConcurrency limits how many hosts are processed at the same time.
func WithConcurrency(concurrency int) Option {
	return func(options *Options) error {
		options.Concurrency = concurrency
		return nil
	}
}

// WithExecOptions configures how commands are run.
func WithExecOptions(execOptions ...rexec.ExecOption) Option {
	return func(options *Options) error {
		options.ExecOptions = append(options.ExecOptions, execOptions...)
		return nil
	}
}

// WithFQDN requests fully qualified domain names.
func WithFQDN(fqdn bool) Option {
	return func(options *Options) error {
		options.FQDN = fqdn
		return nil
	}
}

// WithCompression sets the compression of uploaded files.
func WithCompression(compression imagefile.Compression) Option {
	return func(options *Options) error {
		options.Compression = compression
		return nil
	}
}
