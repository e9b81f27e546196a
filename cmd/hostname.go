package cmd

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/nicklasfrahm/rcmd/pkg/ops"
)

var hostnameFlags struct {
	fleet fleetFlags
	fqdn  bool
}

var hostnameCmd = &cobra.Command{
	Use:   "hostname",
	Short: "Print the hostnames of the fleet",
	Long: `Print the hostname that every selected host reports
about itself, next to its name in the configuration.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := append(hostnameFlags.fleet.options(), ops.WithFQDN(hostnameFlags.fqdn))

		hostnames, err := ops.Hostname(cmd.Context(), opts...)
		for _, name := range slices.Sorted(maps.Keys(hostnames)) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, hostnames[name])
		}

		return err
	},
}

func init() {
	hostnameFlags.fleet.register(hostnameCmd)
	hostnameCmd.Flags().BoolVarP(&hostnameFlags.fqdn, "fqdn", "f", false, "print fully qualified domain names")

	rootCmd.AddCommand(hostnameCmd)
}
