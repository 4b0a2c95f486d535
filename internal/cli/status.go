package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thesammykins/onlydrives-alert-bot/internal/app"
)

var statusRecent int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show monitoring totals and recent alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if statusRecent < 0 {
			return fmt.Errorf("--recent cannot be negative")
		}
		return getApp().Status(cmd.Context(), cmd.OutOrStdout(), app.StatusOptions{RecentAlerts: statusRecent})
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusRecent, "recent", 10, "Number of recent alerts to display")
}
