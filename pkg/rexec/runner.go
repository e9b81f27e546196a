// Package rexec provides APIs to execute commands on remote machines.
package rexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nicklasfrahm/rcmd/pkg/shell"
	"github.com/nicklasfrahm/rcmd/pkg/sshx"
)

// ErrNotConnected is returned when a runner is used before Connect.
var ErrNotConnected = errors.New("runner not connected")

// Runner is the interface for running commands. This
// can be for example via an SSH session, inside a pod
// or on the local machine.
type Runner interface {
	// Connect establishes a connection to the execution
	// environment.
	Connect(ctx context.Context) error
	// Run executes a command and waits for it to finish.
	Run(ctx context.Context, cmd shell.Command, options ...ExecOption) (*Result, error)
	// Disconnect closes the connection to the execution
	// environment.
	Disconnect() error
	// String describes the execution environment.
	String() string
}

// Uploader is implemented by runners that can write files to the
// execution environment.
type Uploader interface {
	Upload(ctx context.Context, path string, reader io.Reader) error
}

// Result is the outcome of a finished command.
type Result struct {
	Command    shell.Command
	Stdout     string
	Stderr     string
	ExitStatus int
}

// ExitError is returned when a command exits with a non-zero status.
type ExitError struct {
	*Result
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("command %s exited with status %d", e.Command, e.ExitStatus)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

// ExecOptions contains the configuration for a single command.
type ExecOptions struct {
	Env   map[string]string
	Stdin io.Reader
	Sudo  bool
	Shell bool
	Check bool
}

// ExecOption applies a configuration option
// for the execution of a command.
type ExecOption func(options *ExecOptions) error

// Apply applies the option functions to the current set of options.
func (o *ExecOptions) Apply(options ...ExecOption) (*ExecOptions, error) {
	for _, option := range options {
		if err := option(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// GetDefaultExecOptions returns the default options for
// running a command.
func GetDefaultExecOptions() *ExecOptions {
	return &ExecOptions{
		Check: true,
	}
}

// WithEnv sets an environment variable for the command.
func WithEnv(key, value string) ExecOption {
	return func(options *ExecOptions) error {
		if key == "" || strings.ContainsAny(key, "= ") {
			return fmt.Errorf("invalid environment variable name: %q", key)
		}
		if options.Env == nil {
			options.Env = map[string]string{}
		}
		options.Env[key] = value
		return nil
	}
}

// WithStdin feeds the reader to the standard input of the command.
func WithStdin(stdin io.Reader) ExecOption {
	return func(options *ExecOptions) error {
		options.Stdin = stdin
		return nil
	}
}

// WithSudo runs the command via sudo.
func WithSudo() ExecOption {
	return func(options *ExecOptions) error {
		options.Sudo = true
		return nil
	}
}

// WithShell runs the command via "sh -c".
func WithShell() ExecOption {
	return func(options *ExecOptions) error {
		options.Shell = true
		return nil
	}
}

// WithCheck controls whether a non-zero exit status is returned as
// an *ExitError. It is enabled by default.
func WithCheck(check bool) ExecOption {
	return func(options *ExecOptions) error {
		options.Check = check
		return nil
	}
}

// prepare wraps the command according to the options.
func prepare(cmd shell.Command, options *ExecOptions) *sshx.Cmd {
	return &sshx.Cmd{
		Cmd:   cmd,
		Env:   options.Env,
		Shell: options.Shell,
		Sudo:  options.Sudo,
		Stdin: options.Stdin,
	}
}

// finish turns a finished command into a result and applies the
// exit status check.
func finish(cmd shell.Command, stdout, stderr string, status int, options *ExecOptions) (*Result, error) {
	result := &Result{
		Command:    cmd,
		Stdout:     stdout,
		Stderr:     stderr,
		ExitStatus: status,
	}
	if status != 0 && options.Check {
		return result, &ExitError{Result: result}
	}
	return result, nil
}
