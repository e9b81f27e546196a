package rexec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/nicklasfrahm/rcmd/pkg/shell"
)

// HostnameError is returned when the hostname of a machine can not
// be determined.
type HostnameError struct {
	Runner string
	Reason string
	Err    error
}

func (e *HostnameError) Error() string {
	return fmt.Sprintf("unable to get hostname from %s: %s", e.Runner, e.Reason)
}

func (e *HostnameError) Unwrap() error {
	return e.Err
}

type hostnameKey struct {
	runner Runner
	fqdn   bool
}

// HostnameCache looks up and remembers the hostnames of runners.
// The zero value is ready to use.
type HostnameCache struct {
	// Disabled turns off caching, so every call runs the command.
	Disabled bool

	mu    sync.Mutex
	names map[hostnameKey]string
}

// Hostname returns the hostname of the machine behind the runner.
// If fqdn is set, the fully qualified domain name is returned. A nil
// runner refers to the local machine.
func (c *HostnameCache) Hostname(ctx context.Context, runner Runner, fqdn bool) (string, error) {
	if runner == nil {
		return os.Hostname()
	}

	key := hostnameKey{runner: runner, fqdn: fqdn}
	if !c.Disabled {
		c.mu.Lock()
		name, ok := c.names[key]
		c.mu.Unlock()
		if ok {
			return name, nil
		}
	}

	name, err := Hostname(ctx, runner, fqdn)
	if err != nil {
		return "", err
	}

	if !c.Disabled {
		c.mu.Lock()
		if c.names == nil {
			c.names = make(map[hostnameKey]string)
		}
		c.names[key] = name
		c.mu.Unlock()
	}

	return name, nil
}

// Forget drops the cached hostnames of a runner.
func (c *HostnameCache) Forget(runner Runner) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.names, hostnameKey{runner: runner})
	delete(c.names, hostnameKey{runner: runner, fqdn: true})
}

// Hostname runs "hostname" via the runner without caching and
// returns the first non-blank line of its output.
func Hostname(ctx context.Context, runner Runner, fqdn bool) (string, error) {
	cmd := shell.Args("hostname")
	if fqdn {
		cmd = shell.Args("hostname", "-f")
	}

	result, err := runner.Run(ctx, cmd)
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return "", &HostnameError{
				Runner: runner.String(),
				Reason: strings.TrimSpace(exitErr.Stderr),
				Err:    err,
			}
		}
		return "", err
	}

	for _, line := range strings.Split(result.Stdout, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			return name, nil
		}
	}

	return "", &HostnameError{
		Runner: runner.String(),
		Reason: fmt.Sprintf("invalid result: %q", result.Stdout),
	}
}
