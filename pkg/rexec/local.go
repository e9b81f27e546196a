package rexec

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/nicklasfrahm/rcmd/pkg/shell"
)

// Local is a runner that executes commands on the local machine. The
// arguments are passed to the process as is, unless WithShell is used,
// in which case the quoted command line is interpreted by "sh -c".
type Local struct {
	Logger *zerolog.Logger
}

// NewLocal returns a new runner for the local machine.
func NewLocal(options ...Option) (*Local, error) {
	opts, err := GetDefaultOptions().Apply(options...)
	if err != nil {
		return nil, err
	}

	return &Local{
		Logger: opts.Logger,
	}, nil
}

// Connect is a no-op for the local machine.
func (runner *Local) Connect(ctx context.Context) error {
	return ctx.Err()
}

// Run executes the command as a local process.
func (runner *Local) Run(ctx context.Context, cmd shell.Command, options ...ExecOption) (*Result, error) {
	opts, err := GetDefaultExecOptions().Apply(options...)
	if err != nil {
		return nil, err
	}

	argv := prepare(cmd, opts).Argv().Args()
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}

	var stdout, stderr bytes.Buffer
	proc := exec.CommandContext(ctx, argv[0], argv[1:]...)
	proc.Stdin = opts.Stdin
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	status := 0
	if err := proc.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || ctx.Err() != nil {
			return nil, errors.Join(err, ctx.Err())
		}
		status = exitErr.ExitCode()
	}

	runner.Logger.Debug().Strs("argv", argv).Int("status", status).Msg("Command finished")

	return finish(cmd, stdout.String(), stderr.String(), status, opts)
}

// Upload writes a file on the local machine.
func (runner *Local) Upload(ctx context.Context, path string, reader io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}

	if _, err := io.Copy(file, reader); err != nil {
		file.Close()
		return err
	}

	return file.Close()
}

// Disconnect is a no-op for the local machine.
func (runner *Local) Disconnect() error {
	return nil
}

func (runner *Local) String() string {
	return "local://"
}
