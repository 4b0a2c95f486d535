package alerting

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesammykins/onlydrives-alert-bot/internal/catalog"
	"github.com/thesammykins/onlydrives-alert-bot/internal/storage"
)

var defaultThresholds = Thresholds{
	Drop:  decimal.RequireFromString("0.05"),
	Spike: decimal.RequireFromString("0.10"),
}

func snapshot(price string, available bool) catalog.Snapshot {
	return catalog.Snapshot{
		ID:         "123",
		SKU:        "TEST-SKU",
		Source:     "test-source",
		Name:       "Test Drive 10TB",
		Type:       "HDD",
		Condition:  "New",
		CapacityTB: "10.00",
		Available:  available,
		PriceTotal: decimal.RequireFromString(price),
		PricePerTB: decimal.RequireFromString(price).Div(decimal.NewFromInt(10)),
		ObservedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func state(price string, available bool) *storage.ProductState {
	return &storage.ProductState{
		ProductID:      "123",
		SKU:            "TEST-SKU",
		Source:         "test-source",
		LastPriceTotal: decimal.RequireFromString(price),
		LastPricePerTB: decimal.RequireFromString(price).Div(decimal.NewFromInt(10)),
		LastAvailable:  available,
		LastCheckedAt:  time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		FirstSeenAt:    time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
	}
}

func kinds(events []Event) []Kind {
	out := make([]Kind, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Kind)
	}
	return out
}

func TestDetectNewProduct(t *testing.T) {
	for _, available := range []bool{true, false} {
		events := Detect(snapshot("200.00", available), nil, defaultThresholds)
		require.Len(t, events, 1)
		assert.Equal(t, KindNewProduct, events[0].Kind)
		assert.True(t, events[0].CurrentPrice.Equal(decimal.NewFromInt(200)))
		assert.False(t, events[0].PreviousPrice.Valid)
		assert.False(t, events[0].PercentChange.Valid)
	}
}

func TestDetectPriceDrop(t *testing.T) {
	events := Detect(snapshot("180.00", true), state("200", true), defaultThresholds)

	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, KindPriceDrop, ev.Kind)
	assert.True(t, ev.PreviousPrice.Decimal.Equal(decimal.NewFromInt(200)))
	assert.True(t, ev.CurrentPrice.Equal(decimal.NewFromInt(180)))
	assert.InDelta(t, -0.10, ev.PercentChange.Decimal.InexactFloat64(), 1e-9)
}

func TestDetectPriceSpike(t *testing.T) {
	events := Detect(snapshot("230.00", true), state("200", true), defaultThresholds)

	require.Len(t, events, 1)
	assert.Equal(t, KindPriceSpike, events[0].Kind)
	assert.InDelta(t, 0.15, events[0].PercentChange.Decimal.InexactFloat64(), 1e-9)
}

func TestDetectThresholdGrid(t *testing.T) {
	cases := []struct {
		current string
		want    []Kind
	}{
		{"190.00", []Kind{KindPriceDrop}},  // exactly -5%
		{"190.01", []Kind{}},               // just above the drop threshold
		{"198.00", []Kind{}},               // -1%
		{"200.00", []Kind{}},               // flat
		{"219.99", []Kind{}},               // just below the spike threshold
		{"220.00", []Kind{KindPriceSpike}}, // exactly +10%
		{"100.00", []Kind{KindPriceDrop}},  // -50%
		{"0.00", []Kind{KindPriceDrop}},    // unparseable upstream price degraded to zero
	}
	for _, tc := range cases {
		t.Run(tc.current, func(t *testing.T) {
			events := Detect(snapshot(tc.current, true), state("200", true), defaultThresholds)
			assert.Equal(t, tc.want, kinds(events))
		})
	}
}

func TestDetectZeroBaselineHasNoPriceEvent(t *testing.T) {
	events := Detect(snapshot("180.00", true), state("0", true), defaultThresholds)
	assert.Empty(t, events)
}

func TestDetectAvailabilityTransitions(t *testing.T) {
	cases := []struct {
		name          string
		prev, current bool
		restock       bool
	}{
		{"false to true", false, true, true},
		{"true to false", true, false, false},
		{"false to false", false, false, false},
		{"true to true", true, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events := Detect(snapshot("200.00", tc.current), state("200", tc.prev), defaultThresholds)
			if tc.restock {
				assert.Equal(t, []Kind{KindBackInStock}, kinds(events))
			} else {
				assert.Empty(t, events)
			}
		})
	}
}

func TestDetectDropAndRestockOrdered(t *testing.T) {
	events := Detect(snapshot("180.00", true), state("200", false), defaultThresholds)

	assert.Equal(t, []Kind{KindPriceDrop, KindBackInStock}, kinds(events))
	assert.InDelta(t, -0.10, events[0].PercentChange.Decimal.InexactFloat64(), 1e-9)
	assert.False(t, events[1].PercentChange.Valid)
}

func TestDetectIsPure(t *testing.T) {
	prev := state("200", false)
	snap := snapshot("170.00", true)
	before := *prev

	first := Detect(snap, prev, defaultThresholds)
	second := Detect(snap, prev, defaultThresholds)

	assert.Equal(t, kinds(first), kinds(second))
	assert.Equal(t, before, *prev)
}

func TestKindTableComplete(t *testing.T) {
	seen := map[string]bool{}
	for _, k := range Kinds() {
		info := k.Info()
		require.NotEmpty(t, info.Name, "kind %d has no table entry", int(k))
		assert.NotEmpty(t, info.Title)
		assert.NotEmpty(t, info.ChannelKey)
		assert.NotEmpty(t, info.EnabledKey)
		assert.False(t, seen[info.Name], "duplicate name %s", info.Name)
		seen[info.Name] = true

		parsed, err := ParseKind(info.Name)
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	assert.Len(t, seen, 4)

	assert.False(t, KindNewProduct.Subscribable())
	assert.True(t, KindPriceDrop.IsPrice())
	assert.True(t, KindPriceSpike.IsPrice())
	assert.False(t, KindBackInStock.IsPrice())

	_, err := ParseKind("went_out_of_stock")
	assert.Error(t, err)
}
