package alerting

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextBaselineFirstObservation(t *testing.T) {
	snap := snapshot("200.00", true)
	next := NextBaseline(snap, nil, false)

	assert.Equal(t, snap.ID, next.ProductID)
	assert.True(t, next.LastPriceTotal.Equal(decimal.NewFromInt(200)))
	assert.True(t, next.LastAvailable)
	assert.Equal(t, snap.ObservedAt, next.FirstSeenAt)
	assert.Equal(t, snap.ObservedAt, next.LastCheckedAt)
}

func TestNextBaselineHoldsPriceWithoutAlert(t *testing.T) {
	prev := state("200", false)
	next := NextBaseline(snapshot("196.00", true), prev, false)

	assert.True(t, next.LastPriceTotal.Equal(decimal.NewFromInt(200)))
	assert.True(t, next.LastPricePerTB.Equal(prev.LastPricePerTB))
	assert.True(t, next.LastAvailable, "availability always refreshes")
	assert.Equal(t, prev.FirstSeenAt, next.FirstSeenAt)
}

func TestNextBaselineAdvancesAfterDeliveredAlert(t *testing.T) {
	next := NextBaseline(snapshot("180.00", true), state("200", true), true)
	assert.True(t, next.LastPriceTotal.Equal(decimal.NewFromInt(180)))
	assert.True(t, next.LastPricePerTB.Equal(decimal.NewFromInt(18)))
}

func TestNextBaselineReplacesZeroPrice(t *testing.T) {
	next := NextBaseline(snapshot("150.00", true), state("0", true), false)
	assert.True(t, next.LastPriceTotal.Equal(decimal.NewFromInt(150)))
}

func TestNextBaselineNeverRewindsCheckedAt(t *testing.T) {
	prev := state("200", true)
	prev.LastCheckedAt = time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)

	next := NextBaseline(snapshot("200.00", true), prev, false)
	assert.Equal(t, prev.LastCheckedAt, next.LastCheckedAt)
}

// Sub-threshold drops accumulate against the held baseline until one crosses.
func TestBaselineAccumulatesSlowDrift(t *testing.T) {
	prev := state("200", true)
	prices := []string{"196.00", "192.00", "188.00"}

	var fired []Kind
	for i, price := range prices {
		snap := snapshot(price, true)
		events := Detect(snap, prev, defaultThresholds)
		delivered := false
		for _, ev := range events {
			if ev.Kind.IsPrice() {
				fired = append(fired, ev.Kind)
				delivered = true
				if i == len(prices)-1 {
					assert.InDelta(t, -0.06, ev.PercentChange.Decimal.InexactFloat64(), 1e-9)
				}
			}
		}
		next := NextBaseline(snap, prev, delivered)
		prev = &next
	}

	require.Equal(t, []Kind{KindPriceDrop}, fired)
	assert.True(t, prev.LastPriceTotal.Equal(decimal.NewFromInt(188)))
}
