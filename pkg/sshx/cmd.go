package sshx

import (
	"io"
	"maps"
	"slices"

	"github.com/nicklasfrahm/rcmd/pkg/shell"
)

// Cmd describes a command to be executed on the remote host.
type Cmd struct {
	Cmd    shell.Command
	Env    map[string]string
	Shell  bool
	Sudo   bool
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Argv returns the full argument vector of the command, including
// the sudo, env and shell wrappers.
func (c *Cmd) Argv() shell.Command {
	argv := c.Cmd.Args()

	// The shell receives the quoted command line as a single argument.
	if c.Shell {
		argv = []string{"sh", "-c", c.Cmd.String()}
	}

	if len(c.Env) > 0 {
		prefix := []string{"env"}
		for _, key := range slices.Sorted(maps.Keys(c.Env)) {
			prefix = append(prefix, key+"="+c.Env[key])
		}
		argv = append(prefix, argv...)
	}

	if c.Sudo {
		argv = append([]string{"sudo"}, argv...)
	}

	return shell.Args(argv...)
}

// String compiles the command line sent to the remote shell.
func (c *Cmd) String() string {
	return c.Argv().String()
}
