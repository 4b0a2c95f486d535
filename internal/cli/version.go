package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thesammykins/onlydrives-alert-bot/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "drivewatch %s\n", version.String())
	},
}
