package cmd

import (
	"github.com/spf13/cobra"

	"github.com/nicklasfrahm/rcmd/pkg/imagefile"
	"github.com/nicklasfrahm/rcmd/pkg/ops"
)

var putFlags struct {
	fleet       fleetFlags
	compression string
}

var putCmd = &cobra.Command{
	Use:   "put <local> <remote>",
	Short: "Copy a file to the fleet",
	Long: `Copy a local file to all selected hosts. Files that are
compressed with gzip, bzip2 or zstd are decompressed on
the way. By default the compression is detected from the
content of the file.`,
	Example: `  rcmd put --hosts db ./image.raw.zst /var/lib/images/image.raw`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		compression, err := imagefile.ParseCompression(putFlags.compression)
		if err != nil {
			return err
		}

		opts := append(putFlags.fleet.options(), ops.WithCompression(compression))

		return ops.Put(cmd.Context(), args[0], args[1], opts...)
	},
}

func init() {
	putFlags.fleet.register(putCmd)
	putCmd.Flags().StringVar(&putFlags.compression, "compression", "auto", "compression of the file (auto, none, gzip, bzip2, zstd)")

	rootCmd.AddCommand(putCmd)
}
