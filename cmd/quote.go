package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nicklasfrahm/rcmd/pkg/shell"
)

var quoteCmd = &cobra.Command{
	Use:   "quote [args...]",
	Short: "Quote arguments into a command line",
	Long: `Quote every argument so that a POSIX shell reads it
back as a single word and print the resulting command
line. Arguments that are already quoted or contain only
safe characters are printed as is.`,
	Example: `  rcmd quote -- echo "it's" '$HOME'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), shell.Join(args...))
		return err
	},
}

func init() {
	rootCmd.AddCommand(quoteCmd)
}
