package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/thesammykins/onlydrives-alert-bot/internal/admin"
)

// StatusOptions control the status report.
type StatusOptions struct {
	RecentAlerts int
}

// Status prints tracking totals and the most recently delivered alerts.
func (a *App) Status(ctx context.Context, out io.Writer, opts StatusOptions) error {
	store, closeStore, err := a.requireStore(ctx, "show status")
	if err != nil {
		return err
	}
	defer closeStore()

	st, err := admin.NewService(store, a.defaults(), nil).Status(ctx)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Products tracked\t%d\n", st.ProductsTracked)
	fmt.Fprintf(writer, "Available\t%d\n", st.Available)
	fmt.Fprintf(writer, "Out of stock\t%d\n", st.Unavailable)
	fmt.Fprintf(writer, "Subscriptions\t%d\n", st.Subscriptions)
	fmt.Fprintf(writer, "Initial sync\t%s\n", yesNo(st.InitialSyncComplete))
	if st.LastCheck != nil {
		fmt.Fprintf(writer, "Last check (UTC)\t%s\n", st.LastCheck.UTC().Format(time.RFC3339))
	} else {
		fmt.Fprintln(writer, "Last check (UTC)\tnever")
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	if opts.RecentAlerts <= 0 {
		return nil
	}

	alerts, err := store.ListRecentAlerts(ctx, opts.RecentAlerts)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	if len(alerts) == 0 {
		fmt.Fprintln(out, "no alerts delivered yet")
		return nil
	}

	writer = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Sent (UTC)\tProduct\tKind")
	for _, rec := range alerts {
		fmt.Fprintf(writer, "%s\t%s\t%s\n", rec.SentAt.UTC().Format(time.RFC3339), sanitizeInline(rec.ProductID), rec.AlertType)
	}
	return writer.Flush()
}

func yesNo(b bool) string {
	if b {
		return "complete"
	}
	return "pending"
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
