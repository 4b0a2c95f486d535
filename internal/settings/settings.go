package settings

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thesammykins/onlydrives-alert-bot/internal/alerting"
	"github.com/thesammykins/onlydrives-alert-bot/internal/storage"
)

// Keys that are not tied to a specific alert kind.
const (
	KeyDropThreshold  = "price_drop_threshold"
	KeySpikeThreshold = "price_spike_threshold"
	KeyPollInterval   = "poll_interval_ms"
	KeyCooldown       = "alert_cooldown_ms"
)

// Defaults are the compiled-in values used when no override is stored.
type Defaults struct {
	AlertChannelID string
	Thresholds     alerting.Thresholds
	PollInterval   time.Duration
	Cooldown       time.Duration
}

// KindSettings is the resolved routing of one alert kind.
type KindSettings struct {
	ChannelID  string
	Overridden bool
	Enabled    bool
}

// Resolved is a read-only view of the effective settings for one cycle.
type Resolved struct {
	kinds        map[alerting.Kind]KindSettings
	Thresholds   alerting.Thresholds
	PollInterval time.Duration
	Cooldown     time.Duration
}

// Kind returns the routing of the kind; unknown kinds are disabled.
func (r Resolved) Kind(k alerting.Kind) KindSettings {
	ks, ok := r.kinds[k]
	if !ok {
		return KindSettings{}
	}
	return ks
}

// Source is the store slice settings are read from.
type Source interface {
	ListSettings(ctx context.Context) (map[string]string, error)
}

// Load reads the stored overrides and resolves them against the defaults.
func Load(ctx context.Context, src Source, defaults Defaults) (Resolved, error) {
	overrides, err := src.ListSettings(ctx)
	if err != nil {
		return Resolved{}, fmt.Errorf("load settings: %w", err)
	}
	return Resolve(overrides, defaults), nil
}

// Resolve applies overrides on top of defaults. A malformed override value
// falls back to the default for that key.
func Resolve(overrides map[string]string, defaults Defaults) Resolved {
	r := Resolved{
		kinds:        make(map[alerting.Kind]KindSettings, len(alerting.Kinds())),
		Thresholds:   defaults.Thresholds,
		PollInterval: defaults.PollInterval,
		Cooldown:     defaults.Cooldown,
	}

	for _, k := range alerting.Kinds() {
		info := k.Info()
		ks := KindSettings{ChannelID: defaults.AlertChannelID, Enabled: true}
		if ch := strings.TrimSpace(overrides[info.ChannelKey]); ch != "" {
			ks.ChannelID = ch
			ks.Overridden = true
		}
		if raw, ok := overrides[info.EnabledKey]; ok {
			if enabled, err := strconv.ParseBool(strings.TrimSpace(raw)); err == nil {
				ks.Enabled = enabled
			}
		}
		r.kinds[k] = ks
	}

	if d, ok := parseFraction(overrides[KeyDropThreshold]); ok {
		r.Thresholds.Drop = d
	}
	if d, ok := parseFraction(overrides[KeySpikeThreshold]); ok {
		r.Thresholds.Spike = d
	}
	if d, ok := parseMillis(overrides[KeyPollInterval]); ok {
		r.PollInterval = d
	}
	if d, ok := parseMillis(overrides[KeyCooldown]); ok {
		r.Cooldown = d
	}
	return r
}

// KnownKeys lists every key a reset clears. The initial sync marker lives
// outside the settings table and is never part of it.
func KnownKeys() []string {
	keys := make([]string, 0, 2*len(alerting.Kinds())+4)
	for _, k := range alerting.Kinds() {
		info := k.Info()
		keys = append(keys, info.ChannelKey, info.EnabledKey)
	}
	keys = append(keys, KeyDropThreshold, KeySpikeThreshold, KeyPollInterval, KeyCooldown)
	sort.Strings(keys)
	return keys
}

// IsKnown reports whether key is a recognised setting.
func IsKnown(key string) bool {
	for _, k := range KnownKeys() {
		if k == key {
			return true
		}
	}
	return false
}

// Reset deletes every known override.
func Reset(ctx context.Context, store storage.SettingsStore) error {
	for _, key := range KnownKeys() {
		if err := store.DeleteSetting(ctx, key); err != nil {
			return fmt.Errorf("reset %s: %w", key, err)
		}
	}
	return nil
}

// FormatFraction renders a threshold the way it is stored.
func FormatFraction(d decimal.Decimal) string {
	return d.String()
}

// FormatMillis renders a duration the way it is stored.
func FormatMillis(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}

func parseFraction(raw string) (decimal.Decimal, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || !d.IsPositive() {
		return decimal.Decimal{}, false
	}
	return d, true
}

func parseMillis(raw string) (time.Duration, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}
