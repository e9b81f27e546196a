package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nicklasfrahm/rcmd/pkg/shell"
)

var splitFlags struct {
	posix      bool
	commenters string
	null       bool
}

var splitCmd = &cobra.Command{
	Use:   "split <command line>",
	Short: "Split a command line into arguments",
	Long: `Split a command line the way a POSIX shell does and
print one argument per line. Multiple arguments are
joined with a space before splitting.`,
	Example: `  rcmd split "echo 'a b' c"
  rcmd split --posix=false 'echo "a b"'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		command, err := shell.Split(strings.Join(args, " "),
			shell.WithPOSIX(splitFlags.posix),
			shell.WithCommenters(splitFlags.commenters),
		)
		if err != nil {
			return err
		}

		sep := "\n"
		if splitFlags.null {
			sep = "\x00"
		}
		for _, arg := range command.Args() {
			if _, err := fmt.Fprint(cmd.OutOrStdout(), arg, sep); err != nil {
				return err
			}
		}

		return nil
	},
}

func init() {
	splitCmd.Flags().BoolVar(&splitFlags.posix, "posix", true, "use POSIX quoting rules")
	splitCmd.Flags().StringVar(&splitFlags.commenters, "commenters", "#", "characters that start a comment")
	splitCmd.Flags().BoolVarP(&splitFlags.null, "null", "z", false, "separate arguments with NUL instead of newline")

	rootCmd.AddCommand(splitCmd)
}
