package cli

import (
	"github.com/spf13/cobra"

	"github.com/thesammykins/onlydrives-alert-bot/internal/alerting"
	"github.com/thesammykins/onlydrives-alert-bot/internal/app"
)

var (
	simulateSKU    string
	simulateChange float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert <kind>",
	Short: "Send a synthetic alert through the configured transport",
	Long: "Send a synthetic alert of the given kind (new_product, price_drop, price_spike, back_in_stock)\n" +
		"to its configured channel. Cooldowns and the alert log are not affected.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := alerting.ParseKind(args[0])
		if err != nil {
			return err
		}
		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			Kind:      kind,
			SKU:       simulateSKU,
			ChangePct: simulateChange,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSKU, "sku", "", "Use this catalog product instead of a sample one")
	simulateCmd.Flags().Float64Var(&simulateChange, "change", 0, "Signed percent change for price kinds, e.g. -12.5")
}
