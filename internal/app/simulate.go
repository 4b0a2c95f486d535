package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thesammykins/onlydrives-alert-bot/internal/alerting"
	"github.com/thesammykins/onlydrives-alert-bot/internal/catalog"
	"github.com/thesammykins/onlydrives-alert-bot/internal/settings"
	"github.com/thesammykins/onlydrives-alert-bot/internal/storage"
)

// SimulateOptions describe the synthetic alert.
type SimulateOptions struct {
	Kind alerting.Kind
	// SKU picks a real catalog product; empty uses a sample product.
	SKU string
	// ChangePct is the signed percent move used for price kinds.
	ChangePct float64
}

// SimulateAlert renders and delivers one synthetic alert through the
// configured transport. The cooldown log used is in-memory so real alert
// history is never touched; runtime settings are read from the database when
// one is configured.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if err := a.Config.RequireTransport(); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	transport, err := a.newTransport()
	if err != nil {
		return err
	}

	rs, err := a.loadSettings(ctx)
	if err != nil {
		return err
	}

	snap := sampleProduct()
	if opts.SKU != "" {
		snap, err = a.findProduct(ctx, opts.SKU)
		if err != nil {
			return err
		}
	}

	change, err := changeFraction(opts.ChangePct)
	if err != nil {
		return err
	}
	ev, err := simulatedEvent(opts.Kind, snap, change)
	if err != nil {
		return err
	}

	scratch := storage.NewMemoryStore()
	router := a.newRouter(transport, scratch, nil, nil)
	defer router.Close()

	if !router.DispatchBroadcast(ctx, ev, rs) {
		return fmt.Errorf("simulated %s alert was not delivered, check logs", ev.Kind)
	}
	a.log.Info().Str("kind", ev.Kind.String()).Str("channel_id", rs.Kind(ev.Kind).ChannelID).Msg("simulated alert delivered")
	return nil
}

func (a *App) loadSettings(ctx context.Context) (settings.Resolved, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return settings.Resolved{}, err
	}
	if store == nil {
		return settings.Resolve(nil, a.defaults()), nil
	}
	defer closeStore()
	return settings.Load(ctx, store, a.defaults())
}

func (a *App) findProduct(ctx context.Context, sku string) (catalog.Snapshot, error) {
	snaps, err := a.newCatalog().FetchSnapshots(ctx)
	if err != nil {
		return catalog.Snapshot{}, err
	}
	want := catalog.NormalizeSKU(sku)
	for _, s := range snaps {
		if catalog.NormalizeSKU(s.SKU) == want {
			return s, nil
		}
	}
	return catalog.Snapshot{}, fmt.Errorf("sku %q not found in catalog", sku)
}

// changeFraction converts a signed percent into a fraction.
func changeFraction(pct float64) (decimal.Decimal, error) {
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return decimal.Decimal{}, errors.New("change must be a finite number")
	}
	return decimal.NewFromFloat(pct).Div(decimal.NewFromInt(100)), nil
}

// simulatedEvent builds an event of kind for snap. For price kinds the
// previous price is back-computed from change so the rendered percent matches.
func simulatedEvent(kind alerting.Kind, snap catalog.Snapshot, change decimal.Decimal) (alerting.Event, error) {
	ev := alerting.Event{Kind: kind, Product: snap, CurrentPrice: snap.PriceTotal}
	if !kind.IsPrice() {
		return ev, nil
	}

	switch {
	case change.IsZero() && kind == alerting.KindPriceDrop:
		change = decimal.RequireFromString("-0.10")
	case change.IsZero():
		change = decimal.RequireFromString("0.15")
	}
	if kind == alerting.KindPriceDrop && change.IsPositive() || kind == alerting.KindPriceSpike && change.IsNegative() {
		return alerting.Event{}, fmt.Errorf("change %s%% does not match %s", change.Shift(2).String(), kind)
	}
	if change.LessThanOrEqual(decimal.NewFromInt(-1)) {
		return alerting.Event{}, errors.New("change must be greater than -100%")
	}

	previous := snap.PriceTotal.Div(decimal.NewFromInt(1).Add(change)).Round(2)
	ev.PreviousPrice = decimal.NewNullDecimal(previous)
	ev.PercentChange = decimal.NewNullDecimal(change)
	return ev, nil
}

func sampleProduct() catalog.Snapshot {
	return catalog.Snapshot{
		ID:         "simulated",
		SKU:        "SIM-TEST-10TB",
		Source:     "simulated",
		Name:       "Simulated Drive 10TB",
		Type:       "HDD",
		Condition:  "New",
		CapacityTB: "10",
		Available:  true,
		PriceTotal: decimal.RequireFromString("180.00"),
		PricePerTB: decimal.RequireFromString("18.00"),
		ObservedAt: time.Now().UTC(),
	}
}
