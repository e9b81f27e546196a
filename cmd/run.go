package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nicklasfrahm/rcmd/pkg/engine"
	"github.com/nicklasfrahm/rcmd/pkg/ops"
	"github.com/nicklasfrahm/rcmd/pkg/rexec"
)

var runFlags struct {
	fleet   fleetFlags
	sudo    bool
	shell   bool
	env     []string
	noCheck bool
	stdin   bool
}

var runCmd = &cobra.Command{
	Use:   "run [flags] -- <command>",
	Short: "Run a command on the fleet",
	Long: `Run a command on all selected hosts at the same time.

A single argument is read as a command line and split
like a shell would do it. It may also refer to one of
the configured commands by prefixing its name with "@".
Multiple arguments are used as they are.

The output of every host is printed with the name of the
host as a prefix, unless only a single host is selected.`,
	Example: `  rcmd run --hosts web -- "systemctl status nginx"
  rcmd run --sudo -- apt-get install -y "$PKG"
  rcmd run @uptime`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var command any = args
		if len(args) == 1 {
			command = args[0]
		}

		var execOptions []rexec.ExecOption
		for _, pair := range runFlags.env {
			key, value, ok := strings.Cut(pair, "=")
			if !ok {
				return fmt.Errorf("invalid environment variable: %q", pair)
			}
			execOptions = append(execOptions, rexec.WithEnv(key, value))
		}
		if runFlags.sudo {
			execOptions = append(execOptions, rexec.WithSudo())
		}
		if runFlags.shell {
			execOptions = append(execOptions, rexec.WithShell())
		}
		if runFlags.noCheck {
			execOptions = append(execOptions, rexec.WithCheck(false))
		}
		if runFlags.stdin {
			execOptions = append(execOptions, rexec.WithStdin(cmd.InOrStdin()))
		}

		opts := append(runFlags.fleet.options(), ops.WithExecOptions(execOptions...))

		results, err := ops.Run(cmd.Context(), command, opts...)
		printResults(cmd.OutOrStdout(), cmd.ErrOrStderr(), results)

		return err
	},
}

// printResults writes the output of all hosts. The lines are prefixed
// with the host name if there is more than one host.
func printResults(stdout, stderr io.Writer, results []engine.HostResult) {
	for _, result := range results {
		if result.Result == nil {
			continue
		}

		prefix := ""
		if len(results) > 1 {
			prefix = "[" + result.Host + "] "
		}
		printPrefixed(stdout, prefix, result.Result.Stdout)
		printPrefixed(stderr, prefix, result.Result.Stderr)
	}
}

func printPrefixed(w io.Writer, prefix, output string) {
	if prefix == "" {
		io.WriteString(w, output)
		return
	}

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fmt.Fprintln(w, prefix+scanner.Text())
	}
}

func init() {
	runFlags.fleet.register(runCmd)
	runCmd.Flags().BoolVar(&runFlags.sudo, "sudo", false, "run the command via sudo")
	runCmd.Flags().BoolVar(&runFlags.shell, "shell", false, "run the command via sh -c")
	runCmd.Flags().StringArrayVarP(&runFlags.env, "env", "e", nil, "set an environment variable (KEY=VALUE)")
	runCmd.Flags().BoolVar(&runFlags.noCheck, "no-check", false, "do not fail on a non-zero exit status")
	runCmd.Flags().BoolVarP(&runFlags.stdin, "stdin", "i", false, "forward standard input to every host")

	rootCmd.AddCommand(runCmd)
}
