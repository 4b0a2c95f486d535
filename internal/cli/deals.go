package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thesammykins/onlydrives-alert-bot/internal/app"
)

var (
	dealsCount int
	dealsType  string
)

var dealsCmd = &cobra.Command{
	Use:   "deals",
	Short: "List the cheapest available drives by price per TB",
	RunE: func(cmd *cobra.Command, args []string) error {
		t := strings.ToUpper(strings.TrimSpace(dealsType))
		if t != "" && t != "HDD" && t != "SSD" {
			return fmt.Errorf("--type must be HDD or SSD")
		}
		return getApp().Deals(cmd.Context(), cmd.OutOrStdout(), app.DealsOptions{Count: dealsCount, Type: t})
	},
}

func init() {
	dealsCmd.Flags().IntVar(&dealsCount, "count", 5, "Number of deals to show (1-25)")
	dealsCmd.Flags().StringVar(&dealsType, "type", "", "Only show HDD or SSD")
}
