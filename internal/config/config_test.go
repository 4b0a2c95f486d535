package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 0.05, cfg.Monitoring.DropThreshold)
	assert.Equal(t, 0.10, cfg.Monitoring.SpikeThreshold)
	assert.Equal(t, 4*time.Hour, cfg.Monitoring.Cooldown)
	assert.Equal(t, "discord", cfg.Notify.Transport)
	assert.Equal(t, "https://onlydrives.tx.au/api", cfg.Catalog.BaseURL)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
scheduler:
  interval: 90s
monitoring:
  drop_threshold: 0.08
notify:
  transport: telegram
  alert_channel_id: "-100123"
  telegram:
    bot_token: file-token
stream:
  brokers: a:9092,b:9092
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	t.Setenv("ALERT_CHANNEL_ID", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, 0.08, cfg.Monitoring.DropThreshold)
	assert.Equal(t, "telegram", cfg.Notify.Transport)
	assert.Equal(t, "from-env", cfg.Notify.AlertChannelID)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Stream.Brokers)
	assert.NoError(t, cfg.RequireTransport())
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Scheduler.Interval = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Monitoring.DropThreshold = 0
	assert.Error(t, cfg.Validate())

	for _, v := range []float64{math.NaN(), math.Inf(1)} {
		cfg = base()
		cfg.Monitoring.DropThreshold = v
		assert.Error(t, cfg.Validate())

		cfg = base()
		cfg.Monitoring.SpikeThreshold = v
		assert.Error(t, cfg.Validate())
	}

	cfg = base()
	cfg.Notify.Transport = "carrier-pigeon"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Stream.Enabled = true
	cfg.Stream.Brokers = nil
	assert.Error(t, cfg.Validate())
}

func TestRequireMonitoring(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Error(t, cfg.RequireMonitoring(), "dsn missing")

	cfg.Database.DSN = "postgres://localhost/drivewatch"
	assert.Error(t, cfg.RequireMonitoring(), "channel missing")

	cfg.Notify.AlertChannelID = "123"
	assert.Error(t, cfg.RequireMonitoring(), "token missing")

	cfg.Notify.Discord.Token = "secret"
	assert.NoError(t, cfg.RequireMonitoring())
}
