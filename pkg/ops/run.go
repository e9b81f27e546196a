package ops

import (
	"context"
	"errors"

	"github.com/nicklasfrahm/rcmd/pkg/engine"
)

// Run executes a command on the selected hosts of the fleet. The
// command is anything shell.NewCommand accepts, or a string that
// refers to a configured command.
func Run(ctx context.Context, command any, options ...Option) ([]engine.HostResult, error) {
	var results []engine.HostResult
	err := withEngine(ctx, options, func(eng *engine.Engine, opts *Options) error {
		var err error
		results, err = eng.Run(ctx, opts.Selector, command, opts.ExecOptions...)
		return err
	})

	return results, err
}

// withEngine loads the configuration, connects to the selected hosts
// and runs fn. The hosts are disconnected afterwards, also if fn fails.
func withEngine(ctx context.Context, options []Option, fn func(eng *engine.Engine, opts *Options) error) error {
	// Fetch the options for this operation.
	opts, err := GetDefaultOptions().Apply(options...)
	if err != nil {
		return err
	}

	// Load the configuration file.
	config, err := engine.LoadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.KubeConfigPath != "" {
		config.KubeConfig = opts.KubeConfigPath
		for i := range config.Hosts {
			if pod := config.Hosts[i].Pod; pod != nil {
				pod.KubeConfig = opts.KubeConfigPath
			}
		}
	}

	eng, err := engine.New(
		engine.WithLogger(opts.Logger),
		engine.WithTimeout(opts.Timeout),
		engine.WithConcurrency(opts.Concurrency),
	)
	if err != nil {
		return err
	}

	if err := eng.SetSpec(config); err != nil {
		return err
	}

	if err := eng.Connect(ctx, opts.Selector); err != nil {
		return errors.Join(err, eng.Disconnect())
	}

	return errors.Join(fn(eng, opts), eng.Disconnect())
}
