package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/gookit/validate"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/thesammykins/onlydrives-alert-bot/internal/logging"
	"github.com/thesammykins/onlydrives-alert-bot/internal/version"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Stream     StreamConfig     `mapstructure:"stream"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs polling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
}

// CatalogConfig covers the upstream product feed.
type CatalogConfig struct {
	BaseURL         string        `mapstructure:"base_url" validate:"required|fullUrl"`
	Timeout         time.Duration `mapstructure:"timeout"`
	UserAgent       string        `mapstructure:"user_agent"`
	HistoryCacheMB  int           `mapstructure:"history_cache_mb"`
	HistoryCacheTTL time.Duration `mapstructure:"history_cache_ttl"`
}

// MonitoringConfig holds the compiled-in defaults for runtime settings.
type MonitoringConfig struct {
	DropThreshold  float64       `mapstructure:"drop_threshold"`
	SpikeThreshold float64       `mapstructure:"spike_threshold"`
	Cooldown       time.Duration `mapstructure:"cooldown"`
}

// NotifyConfig defines the notification transport and default routing.
type NotifyConfig struct {
	Transport         string         `mapstructure:"transport" validate:"required|in:discord,telegram"`
	AlertChannelID    string         `mapstructure:"alert_channel_id"`
	FanoutConcurrency int            `mapstructure:"fanout_concurrency"`
	SendTimeout       time.Duration  `mapstructure:"send_timeout"`
	Discord           DiscordConfig  `mapstructure:"discord"`
	Telegram          TelegramConfig `mapstructure:"telegram"`
}

// DiscordConfig configures the Discord REST transport.
type DiscordConfig struct {
	Token             string  `mapstructure:"token"`
	APIBase           string  `mapstructure:"api_base"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// TelegramConfig configures the Telegram Bot API transport.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	APIBase  string `mapstructure:"api_base"`
}

// StreamConfig mirrors delivered alerts onto a Kafka topic.
type StreamConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// AdminConfig exposes the administrative HTTP surface.
type AdminConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("DRIVEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// bindLegacyEnv keeps the plain variable names of the .env files deployed
// alongside the bot working.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("notify.discord.token", "DRIVEWATCH_NOTIFY_DISCORD_TOKEN", "DISCORD_TOKEN")
	_ = v.BindEnv("notify.alert_channel_id", "DRIVEWATCH_NOTIFY_ALERT_CHANNEL_ID", "ALERT_CHANNEL_ID")
	_ = v.BindEnv("notify.telegram.bot_token", "DRIVEWATCH_NOTIFY_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("database.dsn", "DRIVEWATCH_DATABASE_DSN", "DATABASE_URL")
	_ = v.BindEnv("logging.level", "DRIVEWATCH_LOGGING_LEVEL", "LOG_LEVEL")
	_ = v.BindEnv("monitoring.drop_threshold", "DRIVEWATCH_MONITORING_DROP_THRESHOLD", "PRICE_DROP_THRESHOLD")
	_ = v.BindEnv("monitoring.spike_threshold", "DRIVEWATCH_MONITORING_SPIKE_THRESHOLD", "PRICE_SPIKE_THRESHOLD")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "drivewatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", false)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x64726976))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.run_on_start", true)

	v.SetDefault("catalog.base_url", "https://onlydrives.tx.au/api")
	v.SetDefault("catalog.timeout", "15s")
	v.SetDefault("catalog.user_agent", version.UserAgent())
	v.SetDefault("catalog.history_cache_mb", 4)
	v.SetDefault("catalog.history_cache_ttl", "10m")

	v.SetDefault("monitoring.drop_threshold", 0.05)
	v.SetDefault("monitoring.spike_threshold", 0.10)
	v.SetDefault("monitoring.cooldown", "4h")

	v.SetDefault("notify.transport", "discord")
	v.SetDefault("notify.fanout_concurrency", 4)
	v.SetDefault("notify.send_timeout", "10s")
	v.SetDefault("notify.discord.api_base", "https://discord.com/api/v10")
	v.SetDefault("notify.discord.requests_per_second", 4.0)
	v.SetDefault("notify.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("stream.enabled", false)
	v.SetDefault("stream.topic", "drivewatch.alerts")
	v.SetDefault("stream.write_timeout", "5s")

	v.SetDefault("admin.listen", "")
	v.SetDefault("metrics.enabled", true)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs sanity checks that apply to every command.
func (c *Config) Validate() error {
	v := validate.Struct(c)
	if !v.Validate() {
		return fmt.Errorf("invalid config: %s", v.Errors.One())
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if !(c.Monitoring.DropThreshold > 0 && c.Monitoring.DropThreshold <= 1) {
		return fmt.Errorf("monitoring.drop_threshold must be within (0, 1]")
	}
	if !(c.Monitoring.SpikeThreshold > 0) || math.IsInf(c.Monitoring.SpikeThreshold, 0) {
		return fmt.Errorf("monitoring.spike_threshold must be a finite number greater than zero")
	}
	if c.Monitoring.Cooldown < 0 {
		return fmt.Errorf("monitoring.cooldown cannot be negative")
	}
	if c.Stream.Enabled {
		if len(c.Stream.Brokers) == 0 {
			return fmt.Errorf("stream.brokers must be set when stream.enabled")
		}
		if c.Stream.Topic == "" {
			return fmt.Errorf("stream.topic must be set when stream.enabled")
		}
	}
	return nil
}

// RequireMonitoring checks the settings the poll loop cannot run without.
// A missing value here is fatal before the first cycle starts.
func (c *Config) RequireMonitoring() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	return c.RequireTransport()
}

// RequireTransport checks the credentials of the selected notification transport.
func (c *Config) RequireTransport() error {
	if c.Notify.AlertChannelID == "" {
		return fmt.Errorf("notify.alert_channel_id is required")
	}
	switch c.Notify.Transport {
	case "discord":
		if c.Notify.Discord.Token == "" {
			return fmt.Errorf("notify.discord.token is required")
		}
	case "telegram":
		if c.Notify.Telegram.BotToken == "" {
			return fmt.Errorf("notify.telegram.bot_token is required")
		}
	default:
		return fmt.Errorf("unknown notify.transport %q", c.Notify.Transport)
	}
	return nil
}
