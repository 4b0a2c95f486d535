package app

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/goccy/go-json"

	"github.com/thesammykins/onlydrives-alert-bot/internal/delivery"
	"github.com/thesammykins/onlydrives-alert-bot/internal/service"
	"github.com/thesammykins/onlydrives-alert-bot/internal/storage"
)

// dryRunAlertHistory bounds how much alert history seeds a dry run's cooldowns.
const dryRunAlertHistory = 5000

// CheckOptions control a one-off poll cycle.
type CheckOptions struct {
	// DryRun copies persisted state, subscriptions included, into memory and
	// prints alerts instead of sending them. Nothing is written back.
	DryRun bool
}

// Check runs exactly one poll cycle and prints its summary as JSON.
func (a *App) Check(ctx context.Context, out io.Writer, opts CheckOptions) error {
	if opts.DryRun {
		mem, err := a.dryRunStore(ctx)
		if err != nil {
			return err
		}
		return a.runCheck(ctx, out, mem, &printTransport{out: out}, nil, 0)
	}

	if err := a.Config.RequireMonitoring(); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	db, closeStore, err := a.requireStore(ctx, "check")
	if err != nil {
		return err
	}
	defer closeStore()

	transport, err := a.newTransport()
	if err != nil {
		return err
	}
	return a.runCheck(ctx, out, db, transport, a.newSinks(), a.Config.Scheduler.AdvisoryLockKey)
}

func (a *App) runCheck(ctx context.Context, out io.Writer, store storage.StateStore, transport delivery.Transport, sinks []delivery.Sink, lockKey int64) error {
	router := a.newRouter(transport, store, nil, sinks)
	defer router.Close()

	svcOpts := a.serviceOptions(nil)
	svcOpts.LockKey = lockKey
	svc := service.New(a.newCatalog(), store, router, svcOpts, a.Logger)

	res, cycleErr := svc.RunCycle(ctx)
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	return cycleErr
}

// dryRunStore snapshots the durable state into a MemoryStore. Without a
// database the cycle starts from scratch and performs the initial sync.
func (a *App) dryRunStore(ctx context.Context) (*storage.MemoryStore, error) {
	mem := storage.NewMemoryStore()

	db, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if db == nil {
		a.log.Warn().Msg("no database configured, dry run starts from an empty state")
		return mem, nil
	}
	defer closeStore()

	if err := a.copyState(ctx, db, mem); err != nil {
		return nil, err
	}
	return mem, nil
}

func (a *App) copyState(ctx context.Context, src storage.StateStore, dst *storage.MemoryStore) error {
	states, err := src.ListProductStates(ctx)
	if err != nil {
		return err
	}
	for _, st := range states {
		if err := dst.UpsertProductState(ctx, st); err != nil {
			return err
		}
	}

	overrides, err := src.ListSettings(ctx)
	if err != nil {
		return err
	}
	for k, v := range overrides {
		if err := dst.SetSetting(ctx, k, v); err != nil {
			return err
		}
	}

	alerts, err := src.ListRecentAlerts(ctx, dryRunAlertHistory)
	if err != nil {
		return err
	}
	for _, rec := range alerts {
		if err := dst.RecordAlert(ctx, rec.ProductID, rec.AlertType, rec.SentAt); err != nil {
			return err
		}
	}

	subs, err := src.ListSubscriptions(ctx)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if _, err := dst.AddSubscription(ctx, sub); err != nil {
			return err
		}
	}

	synced, err := src.IsInitialSyncComplete(ctx)
	if err != nil {
		return err
	}
	if synced {
		if err := dst.MarkInitialSyncComplete(ctx); err != nil {
			return err
		}
	}

	a.log.Info().
		Int("products", len(states)).
		Int("alerts", len(alerts)).
		Int("subscriptions", len(subs)).
		Msg("dry run state loaded")
	return nil
}

// printTransport writes alerts to a stream instead of a chat service.
type printTransport struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printTransport) SendToChannel(_ context.Context, channelID string, msg delivery.Message) error {
	return p.print("channel "+channelID, msg)
}

func (p *printTransport) SendToUser(_ context.Context, userID string, msg delivery.Message) error {
	return p.print("user "+userID, msg)
}

func (p *printTransport) print(target string, msg delivery.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintf(p.out, "--- %s ---\n%s\n\n", target, msg.PlainText())
	return err
}
