package settings

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesammykins/onlydrives-alert-bot/internal/alerting"
	"github.com/thesammykins/onlydrives-alert-bot/internal/storage"
)

func testDefaults() Defaults {
	return Defaults{
		AlertChannelID: "100",
		Thresholds: alerting.Thresholds{
			Drop:  decimal.RequireFromString("0.05"),
			Spike: decimal.RequireFromString("0.10"),
		},
		PollInterval: 5 * time.Minute,
		Cooldown:     4 * time.Hour,
	}
}

func TestResolveDefaults(t *testing.T) {
	r := Resolve(nil, testDefaults())

	for _, k := range alerting.Kinds() {
		ks := r.Kind(k)
		assert.Equal(t, "100", ks.ChannelID, k.String())
		assert.True(t, ks.Enabled, k.String())
		assert.False(t, ks.Overridden, k.String())
	}
	assert.True(t, r.Thresholds.Drop.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, 5*time.Minute, r.PollInterval)
	assert.Equal(t, 4*time.Hour, r.Cooldown)
}

func TestResolveOverrides(t *testing.T) {
	r := Resolve(map[string]string{
		"channel_price_drop":       "123456",
		"alert_price_drop_enabled": "false",
		"price_drop_threshold":     "0.08",
		"poll_interval_ms":         "60000",
		"alert_cooldown_ms":        "900000",
	}, testDefaults())

	drop := r.Kind(alerting.KindPriceDrop)
	assert.Equal(t, "123456", drop.ChannelID)
	assert.True(t, drop.Overridden)
	assert.False(t, drop.Enabled)
	assert.Equal(t, "100", r.Kind(alerting.KindPriceSpike).ChannelID)

	assert.True(t, r.Thresholds.Drop.Equal(decimal.RequireFromString("0.08")))
	assert.True(t, r.Thresholds.Spike.Equal(decimal.RequireFromString("0.10")))
	assert.Equal(t, time.Minute, r.PollInterval)
	assert.Equal(t, 15*time.Minute, r.Cooldown)
}

func TestResolveMalformedFallsBack(t *testing.T) {
	r := Resolve(map[string]string{
		"alert_new_product_enabled": "sometimes",
		"price_spike_threshold":     "ten percent",
		"price_drop_threshold":      "-0.2",
		"poll_interval_ms":          "0",
		"alert_cooldown_ms":         "soon",
	}, testDefaults())

	assert.True(t, r.Kind(alerting.KindNewProduct).Enabled)
	assert.True(t, r.Thresholds.Spike.Equal(decimal.RequireFromString("0.10")))
	assert.True(t, r.Thresholds.Drop.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, 5*time.Minute, r.PollInterval)
	assert.Equal(t, 4*time.Hour, r.Cooldown)
}

func TestKnownKeys(t *testing.T) {
	keys := KnownKeys()
	assert.Len(t, keys, 12)
	assert.Contains(t, keys, "channel_back_in_stock")
	assert.Contains(t, keys, "alert_new_product_enabled")
	assert.Contains(t, keys, KeyCooldown)
	assert.NotContains(t, keys, "initial_sync_complete")
	assert.True(t, IsKnown("price_spike_threshold"))
	assert.False(t, IsKnown("discord_token"))
}

func TestLoadAndReset(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.SetSetting(ctx, "channel_new_product", "999"))
	require.NoError(t, store.SetSetting(ctx, KeyPollInterval, FormatMillis(2*time.Minute)))
	require.NoError(t, store.MarkInitialSyncComplete(ctx))

	r, err := Load(ctx, store, testDefaults())
	require.NoError(t, err)
	assert.Equal(t, "999", r.Kind(alerting.KindNewProduct).ChannelID)
	assert.Equal(t, 2*time.Minute, r.PollInterval)

	require.NoError(t, Reset(ctx, store))
	left, err := store.ListSettings(ctx)
	require.NoError(t, err)
	assert.Empty(t, left)

	synced, err := store.IsInitialSyncComplete(ctx)
	require.NoError(t, err)
	assert.True(t, synced)
}
