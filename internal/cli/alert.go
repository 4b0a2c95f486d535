package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/thesammykins/onlydrives-alert-bot/internal/admin"
	"github.com/thesammykins/onlydrives-alert-bot/internal/storage"
)

var (
	alertUser    string
	alertDM      bool
	alertChannel string
)

var alertCmd = &cobra.Command{
	Use:   "alert",
	Short: "Manage per-user SKU subscriptions",
}

var alertAddCmd = &cobra.Command{
	Use:   "add <sku>",
	Short: "Subscribe a user to price and stock alerts for a SKU",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := storage.DeliveryChannel
		if alertDM {
			mode = storage.DeliveryDirect
		}
		return getApp().WithAdmin(cmd.Context(), func(svc *admin.Service) error {
			added, err := svc.Subscribe(cmd.Context(), alertUser, args[0], mode, alertChannel)
			if err != nil {
				return err
			}
			if !added {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is already subscribed to %s\n", alertUser, args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "subscribed %s to %s via %s\n", alertUser, args[0], mode)
			return nil
		})
	},
}

var alertRemoveCmd = &cobra.Command{
	Use:   "remove <sku>",
	Short: "Remove a SKU subscription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().WithAdmin(cmd.Context(), func(svc *admin.Service) error {
			removed, err := svc.Unsubscribe(cmd.Context(), alertUser, args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no subscription for %s on %s", alertUser, args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s from %s\n", args[0], alertUser)
			return nil
		})
	},
}

var alertListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's subscriptions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().WithAdmin(cmd.Context(), func(svc *admin.Service) error {
			subs, err := svc.ListSubscriptions(cmd.Context(), alertUser)
			if err != nil {
				return err
			}
			if len(subs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no subscriptions")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SKU\tDelivery\tChannel\tCreated (UTC)")
			for _, s := range subs {
				channel := s.ChannelID
				if channel == "" {
					channel = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.SKU, s.Mode, channel, s.CreatedAt.UTC().Format(time.RFC3339))
			}
			return w.Flush()
		})
	},
}

func init() {
	alertCmd.PersistentFlags().StringVar(&alertUser, "user", "", "Chat user id owning the subscription")
	_ = alertCmd.MarkPersistentFlagRequired("user")

	alertAddCmd.Flags().BoolVar(&alertDM, "dm", false, "Deliver by direct message instead of a channel")
	alertAddCmd.Flags().StringVar(&alertChannel, "channel", "", "Channel id for channel delivery")

	alertCmd.AddCommand(alertAddCmd, alertRemoveCmd, alertListCmd)
}
