package admin

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesammykins/onlydrives-alert-bot/internal/alerting"
	"github.com/thesammykins/onlydrives-alert-bot/internal/service"
	"github.com/thesammykins/onlydrives-alert-bot/internal/settings"
	"github.com/thesammykins/onlydrives-alert-bot/internal/storage"
)

func testDefaults() settings.Defaults {
	return settings.Defaults{
		AlertChannelID: "alerts",
		Thresholds: alerting.Thresholds{
			Drop:  decimal.RequireFromString("0.05"),
			Spike: decimal.RequireFromString("0.10"),
		},
		PollInterval: 5 * time.Minute,
		Cooldown:     4 * time.Hour,
	}
}

func newTestService() (*Service, *storage.MemoryStore) {
	store := storage.NewMemoryStore()
	return NewService(store, testDefaults(), nil), store
}

func ptr[T any](v T) *T { return &v }

func TestSetThresholdRange(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.SetThreshold(ctx, alerting.KindPriceDrop, ptr(8.0)))
	v, ok, err := store.GetSetting(ctx, settings.KeyDropThreshold)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0.08", v)

	require.NoError(t, svc.SetThreshold(ctx, alerting.KindPriceSpike, ptr(0.1)))
	assert.ErrorIs(t, svc.SetThreshold(ctx, alerting.KindPriceDrop, ptr(0.05)), ErrInvalidValue)
	assert.ErrorIs(t, svc.SetThreshold(ctx, alerting.KindPriceDrop, ptr(100.5)), ErrInvalidValue)
	assert.ErrorIs(t, svc.SetThreshold(ctx, alerting.KindBackInStock, ptr(5.0)), ErrInvalidValue)
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		assert.ErrorIs(t, svc.SetThreshold(ctx, alerting.KindPriceDrop, ptr(v)), ErrInvalidValue)
	}

	require.NoError(t, svc.SetThreshold(ctx, alerting.KindPriceDrop, nil))
	_, ok, err = store.GetSetting(ctx, settings.KeyDropThreshold)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetIntervalAndCooldownRange(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.SetInterval(ctx, ptr(60)))
	v, _, _ := store.GetSetting(ctx, settings.KeyPollInterval)
	assert.Equal(t, "60000", v)
	assert.ErrorIs(t, svc.SetInterval(ctx, ptr(59)), ErrInvalidValue)
	assert.ErrorIs(t, svc.SetInterval(ctx, ptr(3601)), ErrInvalidValue)

	require.NoError(t, svc.SetCooldown(ctx, ptr(1440)))
	v, _, _ = store.GetSetting(ctx, settings.KeyCooldown)
	assert.Equal(t, "86400000", v)
	assert.ErrorIs(t, svc.SetCooldown(ctx, ptr(0)), ErrInvalidValue)
	assert.ErrorIs(t, svc.SetCooldown(ctx, ptr(1441)), ErrInvalidValue)
}

func TestChannelToggleAndShow(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.SetChannel(ctx, alerting.KindNewProduct, "999"))
	require.NoError(t, svc.Toggle(ctx, alerting.KindPriceSpike, false))

	view, err := svc.ShowSettings(ctx)
	require.NoError(t, err)
	require.Len(t, view.Kinds, 4)
	assert.Equal(t, KindView{Kind: "new_product", ChannelID: "999", Overridden: true, Enabled: true}, view.Kinds[0])
	assert.Equal(t, KindView{Kind: "price_spike", ChannelID: "alerts", Enabled: false}, view.Kinds[2])
	assert.Equal(t, "5", view.DropThresholdPct)
	assert.Equal(t, "5m0s", view.PollInterval)

	require.NoError(t, svc.SetChannel(ctx, alerting.KindNewProduct, ""))
	require.NoError(t, svc.Reset(ctx))
	view, err = svc.ShowSettings(ctx)
	require.NoError(t, err)
	assert.Empty(t, view.Overrides)
	assert.True(t, view.Kinds[2].Enabled)
}

func TestApplySetting(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.ApplySetting(ctx, "price_spike_threshold", "0.2"))
	require.NoError(t, svc.ApplySetting(ctx, "alert_cooldown_ms", "900000"))
	require.NoError(t, svc.ApplySetting(ctx, "alert_back_in_stock_enabled", "false"))
	require.NoError(t, svc.ApplySetting(ctx, "channel_price_drop", "drops"))

	all, err := store.ListSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"price_spike_threshold":       "0.2",
		"alert_cooldown_ms":           "900000",
		"alert_back_in_stock_enabled": "false",
		"channel_price_drop":          "drops",
	}, all)

	assert.ErrorIs(t, svc.ApplySetting(ctx, "poll_interval_ms", "1000"), ErrInvalidValue)
	assert.ErrorIs(t, svc.ApplySetting(ctx, "price_drop_threshold", "five"), ErrInvalidValue)
	assert.ErrorIs(t, svc.ApplySetting(ctx, "alert_new_product_enabled", "maybe"), ErrInvalidValue)
	assert.ErrorIs(t, svc.ApplySetting(ctx, "discord_token", "x"), ErrUnknownSetting)
	assert.ErrorIs(t, svc.ClearSetting(ctx, "initial_sync_complete"), ErrUnknownSetting)
}

func TestSubscribeUniqueness(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	created, err := svc.Subscribe(ctx, "u1", "st10000nm", storage.DeliveryDirect, "ignored")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.Subscribe(ctx, "u1", "ST10000NM", storage.DeliveryChannel, "c1")
	require.NoError(t, err)
	assert.False(t, created)

	subs, err := store.ListSubscriptionsBySKU(ctx, "ST10000NM")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Empty(t, subs[0].ChannelID)

	removed, err := svc.Unsubscribe(ctx, "u1", "St10000nm")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = svc.Unsubscribe(ctx, "u1", "ST10000NM")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestSubscribeValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Subscribe(ctx, "u1", "SKU", storage.DeliveryChannel, "")
	assert.ErrorIs(t, err, ErrInvalidValue)
	_, err = svc.Subscribe(ctx, "u1", "SKU", storage.DeliveryMode("pigeon"), "")
	assert.ErrorIs(t, err, ErrInvalidValue)
	_, err = svc.Subscribe(ctx, "", "SKU", storage.DeliveryDirect, "")
	assert.ErrorIs(t, err, ErrInvalidValue)
	_, err = svc.Subscribe(ctx, "u1", "  ", storage.DeliveryDirect, "")
	assert.ErrorIs(t, err, ErrInvalidValue)
}

type staticCycles struct{ res service.CycleResult }

func (s staticCycles) LastCycle() (service.CycleResult, bool) { return s.res, true }

func TestStatus(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	t1 := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	require.NoError(t, store.UpsertProductState(ctx, storage.ProductState{ProductID: "1", LastAvailable: true, LastCheckedAt: t1, FirstSeenAt: t1}))
	require.NoError(t, store.UpsertProductState(ctx, storage.ProductState{ProductID: "2", LastAvailable: false, LastCheckedAt: t2, FirstSeenAt: t1}))
	require.NoError(t, store.MarkInitialSyncComplete(ctx))

	svc := NewService(store, testDefaults(), staticCycles{res: service.CycleResult{ID: "c-1", Status: service.StatusOK}})
	_, err := svc.Subscribe(ctx, "u1", "SKU", storage.DeliveryDirect, "")
	require.NoError(t, err)

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.ProductsTracked)
	assert.Equal(t, 1, st.Available)
	assert.Equal(t, 1, st.Unavailable)
	require.NotNil(t, st.LastCheck)
	assert.Equal(t, t2, *st.LastCheck)
	assert.Equal(t, int64(1), st.Subscriptions)
	assert.True(t, st.InitialSyncComplete)
	require.NotNil(t, st.LastCycle)
	assert.Equal(t, "c-1", st.LastCycle.ID)
}
