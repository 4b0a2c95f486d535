package admin

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thesammykins/onlydrives-alert-bot/internal/alerting"
	"github.com/thesammykins/onlydrives-alert-bot/internal/catalog"
	"github.com/thesammykins/onlydrives-alert-bot/internal/service"
	"github.com/thesammykins/onlydrives-alert-bot/internal/settings"
	"github.com/thesammykins/onlydrives-alert-bot/internal/storage"
)

var (
	// ErrInvalidValue marks administrative input outside the accepted range or format.
	ErrInvalidValue = errors.New("admin: invalid value")
	// ErrUnknownSetting marks a key that is not a runtime setting.
	ErrUnknownSetting = errors.New("admin: unknown setting")
)

// Accepted ranges for administrative changes.
var (
	minThresholdPct = decimal.RequireFromString("0.1")
	maxThresholdPct = decimal.NewFromInt(100)
	hundred         = decimal.NewFromInt(100)
)

const (
	minInterval = 60 * time.Second
	maxInterval = 3600 * time.Second
	minCooldown = time.Minute
	maxCooldown = 1440 * time.Minute
)

// CycleReporter exposes the latest poll cycle summary.
type CycleReporter interface {
	LastCycle() (service.CycleResult, bool)
}

// Service implements the administrative operations over the state store.
type Service struct {
	store    storage.StateStore
	defaults settings.Defaults
	cycles   CycleReporter
}

// NewService constructs the administrative service. cycles may be nil when
// no poll loop runs in this process.
func NewService(store storage.StateStore, defaults settings.Defaults, cycles CycleReporter) *Service {
	return &Service{store: store, defaults: defaults, cycles: cycles}
}

// KindView is the effective routing of one alert kind.
type KindView struct {
	Kind       string `json:"kind"`
	ChannelID  string `json:"channel_id"`
	Overridden bool   `json:"overridden"`
	Enabled    bool   `json:"enabled"`
}

// SettingsView is the effective runtime configuration plus the raw overrides.
type SettingsView struct {
	Kinds             []KindView        `json:"kinds"`
	DropThresholdPct  string            `json:"drop_threshold_pct"`
	SpikeThresholdPct string            `json:"spike_threshold_pct"`
	PollInterval      string            `json:"poll_interval"`
	Cooldown          string            `json:"cooldown"`
	Overrides         map[string]string `json:"overrides"`
}

// ShowSettings resolves the current settings.
func (s *Service) ShowSettings(ctx context.Context) (SettingsView, error) {
	overrides, err := s.store.ListSettings(ctx)
	if err != nil {
		return SettingsView{}, fmt.Errorf("list settings: %w", err)
	}
	rs := settings.Resolve(overrides, s.defaults)

	view := SettingsView{
		DropThresholdPct:  rs.Thresholds.Drop.Mul(hundred).String(),
		SpikeThresholdPct: rs.Thresholds.Spike.Mul(hundred).String(),
		PollInterval:      rs.PollInterval.String(),
		Cooldown:          rs.Cooldown.String(),
		Overrides:         overrides,
	}
	for _, k := range alerting.Kinds() {
		ks := rs.Kind(k)
		view.Kinds = append(view.Kinds, KindView{
			Kind:       k.String(),
			ChannelID:  ks.ChannelID,
			Overridden: ks.Overridden,
			Enabled:    ks.Enabled,
		})
	}
	return view, nil
}

// SetChannel routes a kind to a channel; an empty id restores the default channel.
func (s *Service) SetChannel(ctx context.Context, kind alerting.Kind, channelID string) error {
	key := kind.Info().ChannelKey
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return s.store.DeleteSetting(ctx, key)
	}
	return s.store.SetSetting(ctx, key, channelID)
}

// Toggle enables or disables a kind.
func (s *Service) Toggle(ctx context.Context, kind alerting.Kind, enabled bool) error {
	return s.store.SetSetting(ctx, kind.Info().EnabledKey, strconv.FormatBool(enabled))
}

// SetThreshold stores a price threshold given in percent; nil restores the default.
func (s *Service) SetThreshold(ctx context.Context, kind alerting.Kind, percent *float64) error {
	key, err := thresholdKey(kind)
	if err != nil {
		return err
	}
	if percent == nil {
		return s.store.DeleteSetting(ctx, key)
	}
	if math.IsNaN(*percent) || math.IsInf(*percent, 0) {
		return fmt.Errorf("%w: threshold must be a finite number", ErrInvalidValue)
	}
	return s.setFraction(ctx, key, decimal.NewFromFloat(*percent).Div(hundred))
}

// SetInterval stores the poll interval in seconds; nil restores the default.
// The scheduler picks the new value up after its next tick.
func (s *Service) SetInterval(ctx context.Context, seconds *int) error {
	if seconds == nil {
		return s.store.DeleteSetting(ctx, settings.KeyPollInterval)
	}
	return s.setDuration(ctx, settings.KeyPollInterval, time.Duration(*seconds)*time.Second, minInterval, maxInterval)
}

// SetCooldown stores the alert cooldown in minutes; nil restores the default.
func (s *Service) SetCooldown(ctx context.Context, minutes *int) error {
	if minutes == nil {
		return s.store.DeleteSetting(ctx, settings.KeyCooldown)
	}
	return s.setDuration(ctx, settings.KeyCooldown, time.Duration(*minutes)*time.Minute, minCooldown, maxCooldown)
}

// Reset clears every runtime override.
func (s *Service) Reset(ctx context.Context) error {
	return settings.Reset(ctx, s.store)
}

// ApplySetting writes a raw key/value in storage units, validated like the
// typed setters.
func (s *Service) ApplySetting(ctx context.Context, key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case settings.KeyDropThreshold, settings.KeySpikeThreshold:
		d, err := decimal.NewFromString(value)
		if err != nil {
			return fmt.Errorf("%w: %s must be a decimal fraction", ErrInvalidValue, key)
		}
		return s.setFraction(ctx, key, d)
	case settings.KeyPollInterval, settings.KeyCooldown:
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s must be milliseconds", ErrInvalidValue, key)
		}
		lo, hi := minInterval, maxInterval
		if key == settings.KeyCooldown {
			lo, hi = minCooldown, maxCooldown
		}
		return s.setDuration(ctx, key, time.Duration(ms)*time.Millisecond, lo, hi)
	}

	for _, k := range alerting.Kinds() {
		info := k.Info()
		switch key {
		case info.ChannelKey:
			return s.SetChannel(ctx, k, value)
		case info.EnabledKey:
			enabled, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("%w: %s must be true or false", ErrInvalidValue, key)
			}
			return s.Toggle(ctx, k, enabled)
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownSetting, key)
}

// ClearSetting removes one override.
func (s *Service) ClearSetting(ctx context.Context, key string) error {
	if !settings.IsKnown(key) {
		return fmt.Errorf("%w: %q", ErrUnknownSetting, key)
	}
	return s.store.DeleteSetting(ctx, key)
}

func (s *Service) setFraction(ctx context.Context, key string, fraction decimal.Decimal) error {
	pct := fraction.Mul(hundred)
	if pct.LessThan(minThresholdPct) || pct.GreaterThan(maxThresholdPct) {
		return fmt.Errorf("%w: threshold must be between %s%% and %s%%", ErrInvalidValue, minThresholdPct, maxThresholdPct)
	}
	return s.store.SetSetting(ctx, key, settings.FormatFraction(fraction))
}

func (s *Service) setDuration(ctx context.Context, key string, d, lo, hi time.Duration) error {
	if d < lo || d > hi {
		return fmt.Errorf("%w: %s must be between %s and %s", ErrInvalidValue, key, lo, hi)
	}
	return s.store.SetSetting(ctx, key, settings.FormatMillis(d))
}

func thresholdKey(kind alerting.Kind) (string, error) {
	switch kind {
	case alerting.KindPriceDrop:
		return settings.KeyDropThreshold, nil
	case alerting.KindPriceSpike:
		return settings.KeySpikeThreshold, nil
	default:
		return "", fmt.Errorf("%w: %s has no threshold", ErrInvalidValue, kind)
	}
}

// Subscribe adds a SKU subscription. It reports false when the user is
// already subscribed to the SKU.
func (s *Service) Subscribe(ctx context.Context, userID, sku string, mode storage.DeliveryMode, channelID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	sku = catalog.NormalizeSKU(sku)
	channelID = strings.TrimSpace(channelID)

	switch {
	case userID == "":
		return false, fmt.Errorf("%w: user id is required", ErrInvalidValue)
	case sku == "":
		return false, fmt.Errorf("%w: sku is required", ErrInvalidValue)
	case !mode.Valid():
		return false, fmt.Errorf("%w: delivery must be dm or channel", ErrInvalidValue)
	case mode == storage.DeliveryChannel && channelID == "":
		return false, fmt.Errorf("%w: channel delivery needs a channel id", ErrInvalidValue)
	}
	if mode == storage.DeliveryDirect {
		channelID = ""
	}

	return s.store.AddSubscription(ctx, storage.Subscription{
		UserID:    userID,
		SKU:       sku,
		Mode:      mode,
		ChannelID: channelID,
	})
}

// Unsubscribe removes a subscription and reports whether one existed.
func (s *Service) Unsubscribe(ctx context.Context, userID, sku string) (bool, error) {
	return s.store.RemoveSubscription(ctx, strings.TrimSpace(userID), catalog.NormalizeSKU(sku))
}

// ListSubscriptions lists a user's subscriptions.
func (s *Service) ListSubscriptions(ctx context.Context, userID string) ([]storage.Subscription, error) {
	return s.store.ListSubscriptionsByUser(ctx, strings.TrimSpace(userID))
}

// Status summarises monitoring state.
type Status struct {
	ProductsTracked     int                  `json:"products_tracked"`
	Available           int                  `json:"available"`
	Unavailable         int                  `json:"unavailable"`
	LastCheck           *time.Time           `json:"last_check,omitempty"`
	Subscriptions       int64                `json:"subscriptions"`
	InitialSyncComplete bool                 `json:"initial_sync_complete"`
	LastCycle           *service.CycleResult `json:"last_cycle,omitempty"`
}

// Status computes the monitoring summary.
func (s *Service) Status(ctx context.Context) (Status, error) {
	states, err := s.store.ListProductStates(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("list product states: %w", err)
	}

	st := Status{ProductsTracked: len(states)}
	for _, ps := range states {
		if ps.LastAvailable {
			st.Available++
		}
		if st.LastCheck == nil || ps.LastCheckedAt.After(*st.LastCheck) {
			checked := ps.LastCheckedAt
			st.LastCheck = &checked
		}
	}
	st.Unavailable = st.ProductsTracked - st.Available

	if st.Subscriptions, err = s.store.CountSubscriptions(ctx); err != nil {
		return Status{}, fmt.Errorf("count subscriptions: %w", err)
	}
	if st.InitialSyncComplete, err = s.store.IsInitialSyncComplete(ctx); err != nil {
		return Status{}, fmt.Errorf("read sync marker: %w", err)
	}
	if s.cycles != nil {
		if last, ok := s.cycles.LastCycle(); ok {
			st.LastCycle = &last
		}
	}
	return st, nil
}
