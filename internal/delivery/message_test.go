package delivery

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesammykins/onlydrives-alert-bot/internal/alerting"
)

func TestRenderPriceDrop(t *testing.T) {
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	msg := Render(dropEvent(), at)

	assert.Equal(t, "Price Drop Alert", msg.Title)
	assert.Equal(t, 0x00ff00, msg.Color)
	assert.Equal(t, "**Exos 10TB** (HDD)\nCondition: Refurbished", msg.Description)
	assert.Equal(t, at, msg.Timestamp)
	require.Len(t, msg.Fields, 4)
	assert.Equal(t, "~~$200.00~~ → **$180.00** (-10.0%)", msg.Fields[0].Value)
	assert.Equal(t, "$18.00", msg.Fields[1].Value)
	assert.Equal(t, "10.00 TB", msg.Fields[2].Value)
	assert.Equal(t, "test-source", msg.Fields[3].Value)
}

func TestRenderRestockShowsCurrentPriceOnly(t *testing.T) {
	ev := dropEvent()
	ev.Kind = alerting.KindBackInStock
	ev.PreviousPrice = decimal.NullDecimal{}
	ev.PercentChange = decimal.NullDecimal{}

	msg := Render(ev, time.Now())
	assert.Equal(t, "Back in Stock", msg.Title)
	assert.Equal(t, "$180.00", msg.Fields[0].Value)
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "+15.0%", FormatPercent(decimal.RequireFromString("0.15")))
	assert.Equal(t, "-6.0%", FormatPercent(decimal.RequireFromString("-0.06")))
	assert.Equal(t, "0.0%", FormatPercent(decimal.Zero))
}

func TestPlainTextStripsMarkdown(t *testing.T) {
	text := Render(dropEvent(), time.Now()).PlainText()
	assert.Contains(t, text, "[Price Drop Alert]")
	assert.Contains(t, text, "Price: $200.00 → $180.00 (-10.0%)")
	assert.Contains(t, text, "https://example.com/p/123")
	assert.NotContains(t, text, "**")
}
