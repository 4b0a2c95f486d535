package cli

import (
	"github.com/spf13/cobra"

	"github.com/thesammykins/onlydrives-alert-bot/internal/app"
)

var checkDryRun bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a single poll cycle now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Check(cmd.Context(), cmd.OutOrStdout(), app.CheckOptions{DryRun: checkDryRun})
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkDryRun, "dry-run", false, "Print alerts instead of sending them and persist nothing")
}
