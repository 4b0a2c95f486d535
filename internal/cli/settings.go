package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/thesammykins/onlydrives-alert-bot/internal/admin"
	"github.com/thesammykins/onlydrives-alert-bot/internal/alerting"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect or change runtime settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective runtime settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().WithAdmin(cmd.Context(), func(svc *admin.Service) error {
			view, err := svc.ShowSettings(cmd.Context())
			if err != nil {
				return err
			}
			return printSettings(cmd.OutOrStdout(), view)
		})
	},
}

var settingsChannelCmd = &cobra.Command{
	Use:   "channel <kind> [channel-id]",
	Short: "Route an alert kind to a channel; omit the id to restore the default",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := alerting.ParseKind(args[0])
		if err != nil {
			return err
		}
		channelID := ""
		if len(args) == 2 {
			channelID = args[1]
		}
		return mutate(cmd, func(svc *admin.Service) error {
			return svc.SetChannel(cmd.Context(), kind, channelID)
		})
	},
}

var settingsToggleCmd = &cobra.Command{
	Use:   "toggle <kind> <on|off>",
	Short: "Enable or disable an alert kind",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := alerting.ParseKind(args[0])
		if err != nil {
			return err
		}
		var enabled bool
		switch args[1] {
		case "on", "true", "enable":
			enabled = true
		case "off", "false", "disable":
		default:
			return fmt.Errorf("state must be on or off, got %q", args[1])
		}
		return mutate(cmd, func(svc *admin.Service) error {
			return svc.Toggle(cmd.Context(), kind, enabled)
		})
	},
}

var settingsThresholdCmd = &cobra.Command{
	Use:   "threshold <price_drop|price_spike> [percent]",
	Short: "Set a price threshold in percent (0.1-100); omit to restore the default",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := alerting.ParseKind(args[0])
		if err != nil {
			return err
		}
		var percent *float64
		if len(args) == 2 {
			v, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid percent %q", args[1])
			}
			percent = &v
		}
		return mutate(cmd, func(svc *admin.Service) error {
			return svc.SetThreshold(cmd.Context(), kind, percent)
		})
	},
}

var settingsIntervalCmd = &cobra.Command{
	Use:   "interval [seconds]",
	Short: "Set the poll interval (60-3600 s); omit to restore the default",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		seconds, err := optionalInt(args)
		if err != nil {
			return err
		}
		return mutate(cmd, func(svc *admin.Service) error {
			return svc.SetInterval(cmd.Context(), seconds)
		})
	},
}

var settingsCooldownCmd = &cobra.Command{
	Use:   "cooldown [minutes]",
	Short: "Set the alert cooldown (1-1440 min); omit to restore the default",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		minutes, err := optionalInt(args)
		if err != nil {
			return err
		}
		return mutate(cmd, func(svc *admin.Service) error {
			return svc.SetCooldown(cmd.Context(), minutes)
		})
	},
}

var settingsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove every runtime override",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutate(cmd, func(svc *admin.Service) error {
			return svc.Reset(cmd.Context())
		})
	},
}

func init() {
	settingsCmd.AddCommand(
		settingsShowCmd,
		settingsChannelCmd,
		settingsToggleCmd,
		settingsThresholdCmd,
		settingsIntervalCmd,
		settingsCooldownCmd,
		settingsResetCmd,
	)
}

// mutate applies one settings change and confirms it.
func mutate(cmd *cobra.Command, fn func(*admin.Service) error) error {
	return confirm(cmd, getApp().WithAdmin(cmd.Context(), fn))
}

func confirm(cmd *cobra.Command, err error) error {
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}

func optionalInt(args []string) (*int, error) {
	if len(args) == 0 {
		return nil, nil
	}
	v, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", args[0])
	}
	return &v, nil
}

func printSettings(out io.Writer, view admin.SettingsView) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "Kind\tChannel\tEnabled")
	for _, k := range view.Kinds {
		channel := k.ChannelID
		if channel == "" {
			channel = "-"
		}
		if !k.Overridden {
			channel += " (default)"
		}
		fmt.Fprintf(w, "%s\t%s\t%t\n", k.Kind, channel, k.Enabled)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Drop threshold\t%s%%\n", view.DropThresholdPct)
	fmt.Fprintf(w, "Spike threshold\t%s%%\n", view.SpikeThresholdPct)
	fmt.Fprintf(w, "Poll interval\t%s\n", view.PollInterval)
	fmt.Fprintf(w, "Cooldown\t%s\n", view.Cooldown)
	return w.Flush()
}
