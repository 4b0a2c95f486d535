package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/thesammykins/onlydrives-alert-bot/internal/admin"
)

// Migrate applies the embedded schema.
func (a *App) Migrate(ctx context.Context, out io.Writer) error {
	store, closeStore, err := a.requireStore(ctx, "migrate")
	if err != nil {
		return err
	}
	defer closeStore()

	applied, err := store.Migrate(ctx)
	if err != nil {
		return err
	}
	for _, name := range applied {
		fmt.Fprintf(out, "applied %s\n", name)
	}
	return nil
}

// PruneAlerts deletes alert log entries older than olderThan. Entries inside
// the longest possible cooldown are never removed.
func (a *App) PruneAlerts(ctx context.Context, out io.Writer, olderThan time.Duration) error {
	if olderThan < 24*time.Hour {
		return errors.New("--older-than must be at least 24h")
	}

	store, closeStore, err := a.requireStore(ctx, "prune alerts")
	if err != nil {
		return err
	}
	defer closeStore()

	cutoff := time.Now().UTC().Add(-olderThan)
	n, err := store.DeleteAlertsBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	a.log.Info().Time("cutoff", cutoff).Int64("deleted", n).Msg("alert log pruned")
	fmt.Fprintf(out, "deleted %d alert records older than %s\n", n, cutoff.Format(time.RFC3339))
	return nil
}

// WithAdmin opens the store and hands an administrative service to fn.
func (a *App) WithAdmin(ctx context.Context, fn func(*admin.Service) error) error {
	store, closeStore, err := a.requireStore(ctx, "change settings")
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(admin.NewService(store, a.defaults(), nil))
}
