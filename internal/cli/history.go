package cli

import (
	"github.com/spf13/cobra"

	"github.com/thesammykins/onlydrives-alert-bot/internal/app"
)

var (
	historyPNGPath   string
	historyCSVPath   string
	historyMaxPoints int
)

var historyCmd = &cobra.Command{
	Use:   "history <source-sku>",
	Short: "Show price history of a product, optionally exporting CSV and/or PNG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().History(cmd.Context(), cmd.OutOrStdout(), app.HistoryOptions{
			Key:       args[0],
			CSVPath:   historyCSVPath,
			PNGPath:   historyPNGPath,
			MaxPoints: historyMaxPoints,
		})
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyPNGPath, "png", "", "Path to write PNG chart")
	historyCmd.Flags().StringVar(&historyCSVPath, "csv", "", "Path to write CSV data (zstd-compressed when ending in .zst)")
	historyCmd.Flags().IntVar(&historyMaxPoints, "max-points", 500, "Maximum data points to export")
}
