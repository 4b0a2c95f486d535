package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productsJSON = `[
  {"id":"123","sku":"ST22000NM000C-R","name":"Exos 22TB","type":"HDD","condition":"Recertified",
   "capacity_tb":"22.00","url":"https://example.com/p","image_url":"https://example.com/i.jpg",
   "available":true,"current_price_total":"439.00","current_price_per_tb":"19.95","source":"east-digital"},
  {"id":"124","sku":"BROKEN","name":"Broken price","type":"SSD","condition":"New",
   "capacity_tb":"4","available":false,"current_price_total":"n/a","current_price_per_tb":"","source":"shop"},
  {"id":"125","sku":"DERIVED","name":"No per-TB","type":"HDD","condition":"New",
   "capacity_tb":"10","available":true,"current_price_total":"200.00","current_price_per_tb":"","source":"shop"},
  {"id":"","sku":"NOID","source":"shop"}
]`

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestFetchSnapshots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/products", r.URL.Path)
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(productsJSON))
	}))
	defer srv.Close()

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := NewClient(ClientOptions{BaseURL: srv.URL + "/", UserAgent: "test-agent"}, testLogger())
	c.now = func() time.Time { return fixed }

	snaps, err := c.FetchSnapshots(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 3)

	first := snaps[0]
	assert.Equal(t, "123", first.ID)
	assert.True(t, first.PriceTotal.Equal(decimal.RequireFromString("439")))
	assert.True(t, first.PricePerTB.Equal(decimal.RequireFromString("19.95")))
	assert.Equal(t, fixed, first.ObservedAt)
	assert.Equal(t, "east-digital-ST22000NM000C-R", first.Key())

	assert.True(t, snaps[1].PriceTotal.IsZero(), "malformed price degrades to zero")
	assert.True(t, snaps[2].PricePerTB.Equal(decimal.NewFromInt(20)), "per-TB derived from capacity")
}

func TestFetchSnapshotsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL}, testLogger())
	_, err := c.FetchSnapshots(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStatus))
}

func TestFetchSnapshotsMalformedRecordOnlyDropsItself(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
		  {"id":"1","sku":"GOOD","available":true,"current_price_total":"100.00","current_price_per_tb":"10.00","capacity_tb":"10","source":"shop"},
		  {"id":2,"sku":"NUMERIC","available":"true","current_price_total":199.99,"capacity_tb":10,"source":"shop"},
		  {"id":"3","sku":"ODD","available":{"v":1},"current_price_total":[1],"name":null,"source":"shop"},
		  42,
		  "not a product"
		]`))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL}, testLogger())
	snaps, err := c.FetchSnapshots(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 3)

	assert.Equal(t, "GOOD", snaps[0].SKU)
	assert.True(t, snaps[0].PriceTotal.Equal(decimal.NewFromInt(100)))

	numeric := snaps[1]
	assert.Equal(t, "2", numeric.ID)
	assert.True(t, numeric.Available)
	assert.True(t, numeric.PriceTotal.Equal(decimal.RequireFromString("199.99")))
	assert.True(t, numeric.PricePerTB.Equal(decimal.RequireFromString("20")), "per-TB derived from numeric capacity")
	assert.Equal(t, "10", numeric.CapacityTB)

	odd := snaps[2]
	assert.False(t, odd.Available)
	assert.True(t, odd.PriceTotal.IsZero(), "unusable price degrades to zero")
	assert.Empty(t, odd.Name)
}

func TestFetchSnapshotsNotAList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"maintenance"}`))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL}, testLogger())
	_, err := c.FetchSnapshots(context.Background())
	assert.Error(t, err)
}

func TestFetchHistoryUnknownIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL}, testLogger())
	points, err := c.FetchHistory(context.Background(), "fake-source", "FAKE-SKU")
	require.NoError(t, err)
	assert.NotNil(t, points)
	assert.Empty(t, points)
}

func TestFetchHistoryCached(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/sku/east-digital-ST22000NM000C-R/price-history", r.URL.Path)
		_, _ = w.Write([]byte(`[
		  {"recorded_at":"2026-01-01T00:00:00.000Z","price_total":"450.00","price_per_tb":"20.45"},
		  {"recorded_at":"bogus","price_total":"1","price_per_tb":"1"},
		  {"recorded_at":"2026-01-02T00:00:00.000Z","price_total":"439.00","price_per_tb":"19.95"}
		]`))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, HistoryCacheMB: 1, HistoryCacheTTL: time.Minute}, testLogger())

	for i := 0; i < 3; i++ {
		points, err := c.FetchHistory(context.Background(), "east-digital", "ST22000NM000C-R")
		require.NoError(t, err)
		require.Len(t, points, 2)
		assert.True(t, points[1].PriceTotal.Equal(decimal.NewFromInt(439)))
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestParsePrice(t *testing.T) {
	assert.True(t, ParsePrice("123.45").Equal(decimal.RequireFromString("123.45")))
	assert.True(t, ParsePrice(" 1000.00 ").Equal(decimal.NewFromInt(1000)))
	assert.True(t, ParsePrice("").IsZero())
	assert.True(t, ParsePrice("abc").IsZero())
}

func TestProductKeyRoundTrip(t *testing.T) {
	key := ProductKey("east-digital", "ST22000NM000C-R")
	assert.Equal(t, "east-digital-ST22000NM000C-R", key)

	source, sku, ok := SplitProductKey(key, []string{"east", "east-digital"})
	require.True(t, ok)
	assert.Equal(t, "east-digital", source)
	assert.Equal(t, "ST22000NM000C-R", sku)

	source, sku, ok = SplitProductKey("amazon-B0CHGT3XXW", nil)
	require.True(t, ok)
	assert.Equal(t, "amazon", source)
	assert.Equal(t, "B0CHGT3XXW", sku)

	_, _, ok = SplitProductKey("nodash", nil)
	assert.False(t, ok)
}

func TestNormalizeSKU(t *testing.T) {
	assert.Equal(t, "ST22000NM000C-R", NormalizeSKU("  st22000nm000c-r "))
}
