package engine

import (
	"context"
	"slices"

	"github.com/rs/zerolog"

	"github.com/nicklasfrahm/rcmd/pkg/rexec"
	"github.com/nicklasfrahm/rcmd/pkg/sshx"
)

// Host describes a machine that commands are executed on. Exactly
// one of SSH, Local and Pod must be set.
type Host struct {
	Name   string           `yaml:"name"`
	Groups []string         `yaml:"groups"`
	SSH    *sshx.Config     `yaml:"ssh"`
	Local  bool             `yaml:"local"`
	Pod    *rexec.PodConfig `yaml:"pod"`

	Runner rexec.Runner   `yaml:"-"`
	Logger zerolog.Logger `yaml:"-"`
}

// Matches reports whether the host is selected by a single selector,
// which is either the name of the host, one of its groups or "all".
func (host *Host) Matches(selector string) bool {
	return selector == SelectorAll || selector == host.Name || slices.Contains(host.Groups, selector)
}

// Connected reports whether the host has an open connection.
func (host *Host) Connected() bool {
	return host.Runner != nil
}

// Connect establishes a connection to the host.
func (host *Host) Connect(ctx context.Context, options ...Option) error {
	opts, err := GetDefaultOptions().Apply(options...)
	if err != nil {
		return err
	}

	if host.Connected() {
		return nil
	}

	runnerOptions := []rexec.Option{
		rexec.WithLogger(opts.Logger),
		rexec.WithSSHProxy(opts.SSHProxy),
		rexec.WithTimeout(opts.Timeout),
		rexec.WithRetries(opts.Retries, opts.RetryInterval),
	}

	var runner rexec.Runner
	switch {
	case host.SSH != nil:
		runner, err = rexec.NewSSH(host.SSH, runnerOptions...)
	case host.Pod != nil:
		runner, err = rexec.NewPod(host.Pod, runnerOptions...)
	default:
		runner, err = rexec.NewLocal(runnerOptions...)
	}
	if err != nil {
		return err
	}

	host.Logger.Debug().Stringer("runner", runner).Msg("Connecting")
	if err := runner.Connect(ctx); err != nil {
		return err
	}

	host.Runner = runner

	return nil
}

// Disconnect closes the connection to the host.
func (host *Host) Disconnect() error {
	if !host.Connected() {
		return nil
	}

	if err := host.Runner.Disconnect(); err != nil {
		return err
	}
	host.Runner = nil

	return nil
}
